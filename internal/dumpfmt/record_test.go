package dumpfmt

import (
	"encoding/binary"
	"testing"
)

// buildRecord returns a 1024-byte record with typ/inodeID/count set, a
// valid magic, and a checksum that makes ChecksumOK true.
func buildRecord(typ RecordType, inodeID uint32, count int32) []byte {
	b := make([]byte, BlockSize)
	binary.BigEndian.PutUint32(b[offType:], uint32(typ))
	binary.BigEndian.PutUint32(b[offInodeID:], inodeID)
	binary.BigEndian.PutUint32(b[offMagic:], MagicNFS)
	binary.BigEndian.PutUint32(b[offCount:], uint32(count))
	fixChecksum(b)
	return b
}

func fixChecksum(b []byte) {
	binary.BigEndian.PutUint32(b[offChecksum:], 0)
	var sum int32
	for i := 0; i < BlockSize; i += 4 {
		sum += SBE32(b[i:])
	}
	// checksumSeed - sum, placed in the checksum word, brings the total to
	// checksumSeed exactly (signed 32-bit wraparound is fine either way).
	binary.BigEndian.PutUint32(b[offChecksum:], uint32(checksumSeed-sum))
}

func TestChecksumOK(t *testing.T) {
	b := buildRecord(RecordTape, 0, 0)
	if !ChecksumOK(b) {
		t.Fatal("expected valid checksum")
	}
	b[100] ^= 0xff
	if ChecksumOK(b) {
		t.Fatal("expected checksum to be invalidated by corruption")
	}
}

func TestChecksumOKWrongSize(t *testing.T) {
	if ChecksumOK(make([]byte, 10)) {
		t.Fatal("expected false for wrong-sized block")
	}
}

func TestDecodeRecord(t *testing.T) {
	b := buildRecord(RecordInode, 42, 7)
	rec, err := DecodeRecord(b)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Type != RecordInode {
		t.Errorf("Type = %v, want INODE", rec.Type)
	}
	if rec.InodeID != 42 {
		t.Errorf("InodeID = %d, want 42", rec.InodeID)
	}
	if rec.Count != 7 {
		t.Errorf("Count = %d, want 7", rec.Count)
	}
	if rec.Magic != MagicNFS {
		t.Errorf("Magic = %d, want %d", rec.Magic, MagicNFS)
	}
}

func TestDecodeRecordWrongSize(t *testing.T) {
	if _, err := DecodeRecord(make([]byte, 100)); err == nil {
		t.Fatal("expected error for wrong-sized block")
	}
}

func TestRecordTypeString(t *testing.T) {
	cases := map[RecordType]string{
		RecordTape:      "TAPE",
		RecordInode:     "INODE",
		RecordBits:      "BITS",
		RecordAddr:      "ADDR",
		RecordEnd:       "END",
		RecordCLRI:      "CLRI",
		RecordType(99):  "RecordType(99)",
	}
	for rt, want := range cases {
		if got := rt.String(); got != want {
			t.Errorf("RecordType(%d).String() = %q, want %q", rt, got, want)
		}
	}
}
