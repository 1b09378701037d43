package tarpax

import "strconv"

// paxRecord renders one PAX extended-header record: "<length> key=value\n",
// where <length> is the record's own total length including its decimal
// digit count. The digit count depends on the total length, which depends
// on the digit count, so it's solved as a fixed point: start from a guess
// and recompute until the digit count stops changing. It always converges,
// since growing the digit count only ever grows the total by one digit at a
// time.
func paxRecord(key, value string) []byte {
	body := " " + key + "=" + value + "\n"
	size := len(body)

	digits := 1
	for {
		total := size + digits
		d := len(strconv.Itoa(total))
		if d == digits {
			break
		}
		digits = d
	}

	total := size + digits
	rec := make([]byte, 0, total)
	rec = append(rec, strconv.Itoa(total)...)
	rec = append(rec, body...)
	return rec
}
