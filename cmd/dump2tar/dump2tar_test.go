package main

import (
	"bytes"
	"encoding/binary"
	"testing"

	"dump2tar/internal/dumpfmt"
)

// These offsets mirror internal/dumpfmt's wire layout; duplicated here so
// this test can build a raw dump stream without reaching into that
// package's internals.
const (
	tOffType     = 0
	tOffInodeID  = 20
	tOffMagic    = 24
	tOffChecksum = 28
	tOffInode    = 32
	tOffCount    = 160

	tIOffMode          = tOffInode + 0
	tIOffHardlinkCount = tOffInode + 2
	tIOffSize          = tOffInode + 8
)

func buildRecord(typ dumpfmt.RecordType, inodeID uint32, count int32, mode, hardlinks uint16, size uint64) []byte {
	b := make([]byte, dumpfmt.BlockSize)
	binary.BigEndian.PutUint32(b[tOffType:], uint32(typ))
	binary.BigEndian.PutUint32(b[tOffInodeID:], inodeID)
	binary.BigEndian.PutUint32(b[tOffMagic:], dumpfmt.MagicNFS)
	binary.BigEndian.PutUint32(b[tOffCount:], uint32(count))
	binary.BigEndian.PutUint16(b[tIOffMode:], mode)
	binary.BigEndian.PutUint16(b[tIOffHardlinkCount:], hardlinks)
	binary.BigEndian.PutUint64(b[tIOffSize:], size)

	binary.BigEndian.PutUint32(b[tOffChecksum:], 0)
	var sum int32
	for i := 0; i < dumpfmt.BlockSize; i += 4 {
		sum += dumpfmt.SBE32(b[i:])
	}
	binary.BigEndian.PutUint32(b[tOffChecksum:], uint32(84446-sum))
	return b
}

func emptyDirectoryBlock() []byte {
	b := make([]byte, dumpfmt.BlockSize)
	binary.BigEndian.PutUint16(b[4:], dumpfmt.BlockSize)
	return b
}

// directoryBlockWithEntry packs one real directory entry followed by a
// tombstone filling the rest of the block.
func directoryBlockWithEntry(inodeID uint32, name string) []byte {
	b := make([]byte, dumpfmt.BlockSize)
	recLen := 8 + len(name)
	if recLen%4 != 0 {
		recLen += 4 - recLen%4
	}
	binary.BigEndian.PutUint32(b[0:], inodeID)
	binary.BigEndian.PutUint16(b[4:], uint16(recLen))
	b[6] = 0 // type, unused by the tree builder
	b[7] = byte(len(name))
	copy(b[8:], name)

	rest := b[recLen:]
	binary.BigEndian.PutUint16(rest[4:], uint16(len(rest)))
	return b
}

const (
	modeDir = 0o040755
	modeReg = 0o100644
)

func TestRunEmptyFilesystem(t *testing.T) {
	blocks := [][]byte{
		buildRecord(dumpfmt.RecordTape, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordCLRI, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordBits, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordInode, 2, 1, modeDir, 2, 0),
		emptyDirectoryBlock(),
		buildRecord(dumpfmt.RecordEnd, 0, 0, 0, 0, 0),
	}
	var in bytes.Buffer
	for _, b := range blocks {
		in.Write(b)
	}

	var out bytes.Buffer
	if err := run(&in, &out); err != nil {
		t.Fatal(err)
	}

	// root's header is deferred until DONE, since nothing else ever names
	// it: it must still show up, and the archive must end in two zeroed
	// blocks.
	if !bytes.Contains(out.Bytes(), []byte("/\x00")) {
		t.Error("expected a header for the root directory")
	}
	tail := out.Bytes()[out.Len()-1024:]
	if !bytes.Equal(tail, make([]byte, 1024)) {
		t.Error("expected the archive to end in two zeroed blocks")
	}
}

func TestRunRegularFileContent(t *testing.T) {
	fileData := make([]byte, dumpfmt.BlockSize)
	copy(fileData, "hello, world")

	blocks := [][]byte{
		buildRecord(dumpfmt.RecordTape, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordCLRI, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordBits, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordInode, 2, 1, modeDir, 2, 0),
		directoryBlockWithEntry(5, "hello.txt"),
		buildRecord(dumpfmt.RecordInode, 5, 1, modeReg, 1, uint64(len(fileData))),
		fileData,
		buildRecord(dumpfmt.RecordEnd, 0, 0, 0, 0, 0),
	}
	var in bytes.Buffer
	for _, b := range blocks {
		in.Write(b)
	}

	var out bytes.Buffer
	if err := run(&in, &out); err != nil {
		t.Fatal(err)
	}

	got := out.Bytes()
	if !bytes.Contains(got, []byte("hello.txt")) {
		t.Error("expected a ustar or PAX entry naming hello.txt")
	}
	if !bytes.Contains(got, []byte("hello, world")) {
		t.Error("expected the file's content to be streamed into the archive")
	}
}

// TestRunDeferredDirectoryOrdering exercises scenario S5: directory /x/y
// (inode 15) is processed before its own parent /x (inode 30), so its path
// is not yet resolvable when it is first seen and deferred. Only once /x
// later names it does a flush attempt succeed — triggered by the arrival of
// /x/y/file (inode 20), whose own header must still land after /x/y's in
// the output, never before it.
func TestRunDeferredDirectoryOrdering(t *testing.T) {
	fileData := make([]byte, dumpfmt.BlockSize)
	copy(fileData, "DEEP_FILE_MARKER")

	blocks := [][]byte{
		buildRecord(dumpfmt.RecordTape, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordCLRI, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordBits, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordInode, 2, 1, modeDir, 2, 0),
		directoryBlockWithEntry(30, "x"),
		// /x/y (inode 15) arrives before its own parent /x (inode 30):
		// the dump format orders directories relative to each other
		// arbitrarily, never strictly top-down.
		buildRecord(dumpfmt.RecordInode, 15, 1, modeDir, 2, 0),
		directoryBlockWithEntry(20, "file"),
		buildRecord(dumpfmt.RecordInode, 30, 1, modeDir, 2, 0),
		directoryBlockWithEntry(15, "y"),
		buildRecord(dumpfmt.RecordInode, 20, 1, modeReg, 1, uint64(len(fileData))),
		fileData,
		buildRecord(dumpfmt.RecordEnd, 0, 0, 0, 0, 0),
	}
	var in bytes.Buffer
	for _, b := range blocks {
		in.Write(b)
	}

	var out bytes.Buffer
	if err := run(&in, &out); err != nil {
		t.Fatal(err)
	}
	got := out.Bytes()

	dirOffset := bytes.Index(got, []byte("/x/y/\x00"))
	if dirOffset < 0 {
		t.Fatal("expected a header naming /x/y/ in the output")
	}
	fileOffset := bytes.Index(got, []byte("DEEP_FILE_MARKER"))
	if fileOffset < 0 {
		t.Fatal("expected the file's content in the output")
	}
	if dirOffset >= fileOffset {
		t.Errorf("directory header for /x/y (offset %d) did not precede its child's content (offset %d)", dirOffset, fileOffset)
	}
}

// TestRunNonDirectoryWithNoResolvableName exercises spec.md §7's "internal
// consistency" fatal case: a file inode that no directory's content ever
// named must abort the run rather than emit a bogus header.
func TestRunNonDirectoryWithNoResolvableName(t *testing.T) {
	blocks := [][]byte{
		buildRecord(dumpfmt.RecordTape, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordCLRI, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordBits, 0, 0, 0, 0, 0),
		buildRecord(dumpfmt.RecordInode, 2, 1, modeDir, 2, 0),
		// Root's content names no children at all, so inode 5 below has
		// no entry anywhere in the reverse tree.
		emptyDirectoryBlock(),
		buildRecord(dumpfmt.RecordInode, 5, 0, modeReg, 1, 0),
		buildRecord(dumpfmt.RecordEnd, 0, 0, 0, 0, 0),
	}
	var in bytes.Buffer
	for _, b := range blocks {
		in.Write(b)
	}

	var out bytes.Buffer
	if err := run(&in, &out); err == nil {
		t.Fatal("expected a fatal error for a non-directory inode with no resolvable name")
	}
}
