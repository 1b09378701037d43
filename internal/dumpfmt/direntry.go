package dumpfmt

import "fmt"

// DirEntry is one packed directory entry: inode_id(4)/record_length(2)/
// type(1)/name_len(1)/name(name_len).
type DirEntry struct {
	InodeID      uint32
	RecordLength uint16
	Type         uint8
	Name         string
}

// DecodeDirEntries walks a 1024-byte directory data block and returns its
// entries in order, including tombstones (InodeID == 0). Callers that want
// the reverse-tree population behavior (skip tombstones, ".", "..") do that
// filtering themselves; see internal/dump.
func DecodeDirEntries(block []byte) ([]DirEntry, error) {
	var entries []DirEntry
	off := 0
	for off < len(block) {
		if off+8 > len(block) {
			return nil, fmt.Errorf("dumpfmt: truncated directory entry at offset %d", off)
		}
		inodeID := BE32(block[off:])
		recLen := BE16(block[off+4:])
		typ := block[off+6]
		nameLen := int(block[off+7])
		if recLen == 0 || int(recLen) > len(block)-off {
			return nil, fmt.Errorf("dumpfmt: invalid directory entry record length %d at offset %d", recLen, off)
		}
		var name string
		if inodeID != 0 {
			if off+8+nameLen > len(block) {
				return nil, fmt.Errorf("dumpfmt: directory entry name overruns block at offset %d", off)
			}
			name = string(block[off+8 : off+8+nameLen])
		}
		entries = append(entries, DirEntry{InodeID: inodeID, RecordLength: recLen, Type: typ, Name: name})
		off += int(recLen)
	}
	return entries, nil
}
