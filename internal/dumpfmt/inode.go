package dumpfmt

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mode is a dump inode's 16-bit mode field: the same bit layout as a POSIX
// st_mode (file type nibble plus 12 permission bits), since the dump format
// carries the on-disk UFS inode mode verbatim.
type Mode uint16

// FileKind identifies the type nibble of a Mode.
type FileKind uint8

const (
	KindUnknown FileKind = iota
	KindFIFO
	KindCharDev
	KindDirectory
	KindBlockDev
	KindRegular
	KindSymlink
	KindSocket
)

func (k FileKind) String() string {
	switch k {
	case KindFIFO:
		return "fifo"
	case KindCharDev:
		return "char device"
	case KindDirectory:
		return "directory"
	case KindBlockDev:
		return "block device"
	case KindRegular:
		return "regular"
	case KindSymlink:
		return "symlink"
	case KindSocket:
		return "socket"
	default:
		return "unknown"
	}
}

// Kind returns the file type nibble of m.
func (m Mode) Kind() FileKind {
	switch uint32(m) & unix.S_IFMT {
	case unix.S_IFSOCK:
		return KindSocket
	case unix.S_IFLNK:
		return KindSymlink
	case unix.S_IFREG:
		return KindRegular
	case unix.S_IFBLK:
		return KindBlockDev
	case unix.S_IFDIR:
		return KindDirectory
	case unix.S_IFCHR:
		return KindCharDev
	case unix.S_IFIFO:
		return KindFIFO
	default:
		return KindUnknown
	}
}

// Perm returns the 12-bit permission value (setuid/setgid/sticky plus
// user/group/other rwx), masking out the file type nibble.
func (m Mode) Perm() uint16 {
	return uint16(m) & 0o7777
}

// TimeVal is a dump-format (seconds, microseconds) timestamp pair.
type TimeVal struct {
	Sec, Usec uint32
}

// Micros returns the timestamp as microseconds since the epoch.
func (t TimeVal) Micros() uint64 {
	return uint64(t.Sec)*1_000_000 + uint64(t.Usec)
}

// Inode is the 128-byte embedded inode descriptor carried by every TAPE,
// BITS, CLRI and INODE record.
type Inode struct {
	Mode          Mode
	HardlinkCount uint16
	UIDSmall      uint16
	GIDSmall      uint16
	Size          uint64
	Atime         TimeVal
	Mtime         TimeVal
	Ctime         TimeVal
	DeviceNumber  uint32
	Flags         uint32
	Blocks        int32
	Gen           int32
	GIDBig        uint32
	UIDBig        uint32
}

// UID returns the 32-bit uid when non-zero, else the 16-bit uid.
func (i Inode) UID() uint32 {
	if i.UIDBig != 0 {
		return i.UIDBig
	}
	return uint32(i.UIDSmall)
}

// GID returns the 32-bit gid when non-zero, else the 16-bit gid.
func (i Inode) GID() uint32 {
	if i.GIDBig != 0 {
		return i.GIDBig
	}
	return uint32(i.GIDSmall)
}

const (
	ioffMode          = 0
	ioffHardlinkCount = 2
	ioffUIDSmall      = 4
	ioffGIDSmall      = 6
	ioffSize          = 8
	ioffAtime         = 16
	ioffMtime         = 24
	ioffCtime         = 32
	ioffDeviceNumber  = 40
	// offsets 44..99 hold the 11 direct + 3 indirect block pointers, all
	// unused by this converter (content is located purely by the stream of
	// ADDR/data records that follows each INODE, never by seeking through
	// block pointers).
	ioffFlags        = 100
	ioffBlocks       = 104
	ioffGen          = 108
	ioffGIDBig       = 112
	ioffUIDBig       = 116
	inodeEncodedSize = 128
)

func decodeInode(b []byte) (Inode, error) {
	if len(b) != inodeEncodedSize {
		return Inode{}, fmt.Errorf("dumpfmt: embedded inode must be %d bytes, got %d", inodeEncodedSize, len(b))
	}
	return Inode{
		Mode:          Mode(BE16(b[ioffMode:])),
		HardlinkCount: BE16(b[ioffHardlinkCount:]),
		UIDSmall:      BE16(b[ioffUIDSmall:]),
		GIDSmall:      BE16(b[ioffGIDSmall:]),
		Size:          BE64(b[ioffSize:]),
		Atime:         TimeVal{Sec: BE32(b[ioffAtime:]), Usec: BE32(b[ioffAtime+4:])},
		Mtime:         TimeVal{Sec: BE32(b[ioffMtime:]), Usec: BE32(b[ioffMtime+4:])},
		Ctime:         TimeVal{Sec: BE32(b[ioffCtime:]), Usec: BE32(b[ioffCtime+4:])},
		DeviceNumber:  BE32(b[ioffDeviceNumber:]),
		Flags:         BE32(b[ioffFlags:]),
		Blocks:        SBE32(b[ioffBlocks:]),
		Gen:           SBE32(b[ioffGen:]),
		GIDBig:        BE32(b[ioffGIDBig:]),
		UIDBig:        BE32(b[ioffUIDBig:]),
	}, nil
}
