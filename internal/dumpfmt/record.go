package dumpfmt

import (
	"bytes"
	"fmt"
)

const (
	// BlockSize is the fixed record/block size of the dump tape format.
	BlockSize = 1024

	// MagicNFS is the expected value of every record's magic field.
	MagicNFS = 60012

	// checksumSeed is the sum every valid record's 256 big-endian int32
	// words must add up to, with 32-bit wraparound.
	checksumSeed = 84446
)

// RecordType is a dump record's type field.
type RecordType int32

const (
	RecordTape  RecordType = 1
	RecordInode RecordType = 2
	RecordBits  RecordType = 3
	RecordAddr  RecordType = 4
	RecordEnd   RecordType = 5
	RecordCLRI  RecordType = 6
)

func (t RecordType) String() string {
	switch t {
	case RecordTape:
		return "TAPE"
	case RecordInode:
		return "INODE"
	case RecordBits:
		return "BITS"
	case RecordAddr:
		return "ADDR"
	case RecordEnd:
		return "END"
	case RecordCLRI:
		return "CLRI"
	default:
		return fmt.Sprintf("RecordType(%d)", int32(t))
	}
}

// Record is the 1024-byte header present at the start of every
// block-aligned record in a dump volume. Fields not used by the decoder
// (the volume label, filesystem/device/host names, ...) are still decoded
// here for completeness and for callers that want to log them. The
// blocks/inodes bitmap union and the trailing spare bytes are not decoded.
type Record struct {
	Type         RecordType
	Date         int32
	PreviousDate int32
	VolumeID     int32
	BlockID      uint32
	InodeID      uint32
	Magic        int32
	Checksum     int32
	Inode        Inode
	Count        int32

	Label      string
	Level      int32
	Filesystem string
	Device     string
	Host       string

	Flags         int32
	FirstRecord   int32
	RecordBlockSz int32
	ExtAttributes int32
}

const (
	offType         = 0
	offDate         = 4
	offPreviousDate = 8
	offVolumeID     = 12
	offBlockID      = 16
	offInodeID      = 20
	offMagic        = 24
	offChecksum     = 28
	offInode        = 32
	offCount        = 160

	offLabel      = 676
	labelSize     = 16
	offLevel      = 692
	offFilesystem = 696
	nameFieldSize = 64
	offDevice     = 760
	offHost       = 824

	offFlags         = 888
	offFirstRecord   = 892
	offRecordBlockSz = 896
	offExtAttributes = 900
)

// DecodeRecord parses a 1024-byte block into a Record. It does not verify
// the checksum or magic; see ChecksumOK.
func DecodeRecord(block []byte) (Record, error) {
	if len(block) != BlockSize {
		return Record{}, fmt.Errorf("dumpfmt: record must be %d bytes, got %d", BlockSize, len(block))
	}
	inode, err := decodeInode(block[offInode : offInode+inodeEncodedSize])
	if err != nil {
		return Record{}, err
	}
	return Record{
		Type:         RecordType(SBE32(block[offType:])),
		Date:         SBE32(block[offDate:]),
		PreviousDate: SBE32(block[offPreviousDate:]),
		VolumeID:     SBE32(block[offVolumeID:]),
		BlockID:      BE32(block[offBlockID:]),
		InodeID:      BE32(block[offInodeID:]),
		Magic:        SBE32(block[offMagic:]),
		Checksum:     SBE32(block[offChecksum:]),
		Inode:        inode,
		Count:        SBE32(block[offCount:]),

		Label:      cString(block[offLabel : offLabel+labelSize]),
		Level:      SBE32(block[offLevel:]),
		Filesystem: cString(block[offFilesystem : offFilesystem+nameFieldSize]),
		Device:     cString(block[offDevice : offDevice+nameFieldSize]),
		Host:       cString(block[offHost : offHost+nameFieldSize]),

		Flags:         SBE32(block[offFlags:]),
		FirstRecord:   SBE32(block[offFirstRecord:]),
		RecordBlockSz: SBE32(block[offRecordBlockSz:]),
		ExtAttributes: SBE32(block[offExtAttributes:]),
	}, nil
}

// ChecksumOK reinterprets block as 256 big-endian int32 words and reports
// whether they sum, with 32-bit wraparound, to the expected seed.
func ChecksumOK(block []byte) bool {
	if len(block) != BlockSize {
		return false
	}
	var sum int32
	for i := 0; i < BlockSize; i += 4 {
		sum += SBE32(block[i:])
	}
	return sum == checksumSeed
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
