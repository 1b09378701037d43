package tarpax

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/orcaman/writerseeker"
)

// Writer emits one ustar header, with PAX extended-header fallback, per
// call to AddFile. The only state it carries across calls is the monotonic
// counter used to name PAX entries; it never buffers file content, which
// the caller streams separately using the ContentSize/Padding of the
// returned Result.
type Writer struct {
	paxEntryCount uint64
}

// NewWriter returns a Writer ready to emit the first file header.
func NewWriter() *Writer {
	return &Writer{}
}

// AddFile encodes one file's ustar header, falling back to a PAX extended
// record for any field that doesn't fit its fixed ustar slot.
func (w *Writer) AddFile(f FileDescriptor) Result {
	// The PAX entries accumulate in a scratch buffer behind a reserved
	// 512-byte slot. The PAX header itself, whose size field can only be
	// known once every entry has been appended, is built afterwards and
	// written in place of that slot.
	var pax writerseeker.WriterSeeker
	pax.Write(make([]byte, ustarBlockSize))

	addPax := func(key, value string) {
		pax.Write(paxRecord(key, value))
	}

	var header [ustarBlockSize]byte

	if setText(header[offName:offName+szName], f.Filename) != fitAll {
		addPax("path", f.Filename)
	}
	setOctal(header[offMode:offMode+szMode], int64(f.Perm))
	if setOctal(header[offUID:offUID+szUID], int64(f.UID)) != fitAll {
		addPax("uid", strconv.FormatUint(uint64(f.UID), 10))
	}
	if setOctal(header[offGID:offGID+szGID], int64(f.GID)) != fitAll {
		addPax("gid", strconv.FormatUint(uint64(f.GID), 10))
	}
	if setOctal(header[offSize:offSize+szSize], int64(f.Size)) != fitAll {
		addPax("size", strconv.FormatUint(f.Size, 10))
	}

	if !f.Mtime.IsZero() {
		if f.Mtime.Fractional() {
			setOctal(header[offMtime:offMtime+szMtime], f.Mtime.Sec)
			addPax("mtime", f.Mtime.PAXString())
		} else if setOctal(header[offMtime:offMtime+szMtime], f.Mtime.Sec) != fitAll {
			addPax("mtime", f.Mtime.PAXString())
		}
	}
	// ctime/atime have no ustar slot at all; PAX carries them whenever
	// they're non-zero.
	if !f.Ctime.IsZero() {
		addPax("ctime", f.Ctime.PAXString())
	}
	if !f.Atime.IsZero() {
		addPax("atime", f.Atime.PAXString())
	}

	header[offTypeflag] = f.Type.typeflag()

	if f.Linkname != "" && setText(header[offLinkname:offLinkname+szLinkname], f.Linkname) != fitAll {
		addPax("linkpath", f.Linkname)
	}
	if f.Username != "" && setText(header[offUname:offUname+szUname], f.Username) != fitAll {
		addPax("uname", f.Username)
	}
	if f.Groupname != "" && setText(header[offGname:offGname+szGname], f.Groupname) != fitAll {
		addPax("gname", f.Groupname)
	}
	if setOctal(header[offDevmajor:offDevmajor+szDevmajor], int64(f.DeviceMajor)) != fitAll {
		addPax("SCHILY.devmajor", strconv.FormatUint(uint64(f.DeviceMajor), 10))
	}
	if setOctal(header[offDevminor:offDevminor+szDevminor], int64(f.DeviceMinor)) != fitAll {
		addPax("SCHILY.devminor", strconv.FormatUint(uint64(f.DeviceMinor), 10))
	}

	copy(header[offMagic:offMagic+szMagic], "ustar")
	copy(header[offVersion:offVersion+szVersion], "00")
	finalizeChecksum(&header)

	pos, _ := pax.Seek(0, io.SeekCurrent)
	paxSize := pos - ustarBlockSize

	var buf bytes.Buffer
	if paxSize > 0 {
		var paxHeader [ustarBlockSize]byte
		setText(paxHeader[offName:offName+szName], fmt.Sprintf("./pax_entry_%d", w.paxEntryCount))
		w.paxEntryCount++
		setOctal(paxHeader[offMode:offMode+szMode], 0o600)
		setOctal(paxHeader[offSize:offSize+szSize], paxSize)
		paxHeader[offTypeflag] = 'x'
		copy(paxHeader[offMagic:offMagic+szMagic], "ustar")
		copy(paxHeader[offVersion:offVersion+szVersion], "00")
		finalizeChecksum(&paxHeader)

		buf.Write(paxHeader[:])
		all, _ := io.ReadAll(pax.BytesReader())
		buf.Write(all[ustarBlockSize:])
		if rem := buf.Len() % ustarBlockSize; rem != 0 {
			buf.Write(make([]byte, ustarBlockSize-rem))
		}
	}
	buf.Write(header[:])

	padding := int(511 - (int64(f.Size)+511)%512)

	return Result{
		Buffer:      buf.Bytes(),
		ContentSize: f.Size,
		Padding:     padding,
	}
}

// Close returns the two zero-filled 512-byte blocks that terminate a tar
// archive.
func (w *Writer) Close() Result {
	return Result{Padding: 2 * ustarBlockSize}
}
