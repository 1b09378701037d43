package dump

// Package dump implements the dump-stream decoder state machine, the
// reverse directory tree it builds as it goes, and path resolution over
// that tree. See internal/dumpfmt for the underlying wire format.

type treeEntry struct {
	name   string
	parent uint32
}

// Tree is the reverse directory tree: a multimap from inode id to the
// (name, parent inode id) pairs under which that inode appears. A
// hardlinked file has more than one entry; a directory never does.
type Tree struct {
	entries map[uint32][]treeEntry
}

// rootInode is the fixed inode id of the filesystem root in a dump volume.
const rootInode = 2

func newTree() *Tree {
	t := &Tree{entries: make(map[uint32][]treeEntry)}
	t.entries[rootInode] = []treeEntry{{name: "/", parent: 0}}
	return t
}

func (t *Tree) insert(inode uint32, name string, parent uint32) {
	t.entries[inode] = append(t.entries[inode], treeEntry{name: name, parent: parent})
}

// ResolvePaths returns every absolute path under which inode is known. Only
// regular files can have more than one, via hardlinks.
func (t *Tree) ResolvePaths(inode uint32) []string {
	if inode == rootInode {
		return []string{"/"}
	}
	es := t.entries[inode]
	paths := make([]string, 0, len(es))
	for _, e := range es {
		paths = append(paths, t.resolveDir(e.parent)+e.name)
	}
	return paths
}

// Parents returns the parent inode id of every entry for inode.
func (t *Tree) Parents(inode uint32) []uint32 {
	es := t.entries[inode]
	parents := make([]uint32, 0, len(es))
	for _, e := range es {
		parents = append(parents, e.parent)
	}
	return parents
}

// resolveDir resolves the single path of a directory inode. Directories
// never have hardlinks, so there is at most one entry. It recurses to the
// root without checking whether an ancestor is resolved: if any ancestor is
// still unknown, that level returns "", and every caller above it ends up
// concatenating onto that empty string instead of a leading "/" — so an
// unresolved chain is always recognizable by the absence of a leading "/"
// in the final result, with no separate "ok" signal needed.
func (t *Tree) resolveDir(inode uint32) string {
	if inode == rootInode {
		return "/"
	}
	es := t.entries[inode]
	if len(es) == 0 {
		return ""
	}
	e := es[0]
	return t.resolveDir(e.parent) + e.name + "/"
}
