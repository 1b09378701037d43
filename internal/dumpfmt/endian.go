// Package dumpfmt decodes the big-endian, block-structured wire format of a
// UFS/NFS "dump" (restore-compatible) tape: record headers, the embedded
// inode descriptor, and packed directory entries. It does no I/O and holds
// no state; every exported function takes a byte slice and returns a value.
package dumpfmt

import "encoding/binary"

// BE16/BE32/BE64 interpret the first 2/4/8 bytes of b as an unsigned
// big-endian integer. SBE32/SBE64 do the same for signed fields. Every
// multi-byte field in a dump record goes through one of these rather than
// being overlaid as a typed struct, so a field's offset and width are
// always explicit at the call site.
func BE16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func BE32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func BE64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func SBE32(b []byte) int32 { return int32(binary.BigEndian.Uint32(b)) }
func SBE64(b []byte) int64 { return int64(binary.BigEndian.Uint64(b)) }
