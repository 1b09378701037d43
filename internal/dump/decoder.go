package dump

import (
	"golang.org/x/xerrors"

	"dump2tar/internal/dumpfmt"
)

// ActionKind selects which field of an Action is meaningful.
type ActionKind int

const (
	// ActionFeedBlock means the caller must call SetBlock with exactly
	// dumpfmt.BlockSize fresh bytes before calling Next again.
	ActionFeedBlock ActionKind = iota
	// ActionSkip means the caller must discard exactly Skip bytes from the
	// input before calling Next again.
	ActionSkip
	// ActionInode delivers one decoded inode.
	ActionInode
	// ActionData means the caller must forward (or discard) DataSize bytes
	// of file content and then discard DataPadding further input bytes
	// before calling Next again.
	ActionData
	// ActionDone means the volume is fully consumed; Next returns
	// ActionDone forever afterwards.
	ActionDone
)

// FileDescriptor is the decoder's per-inode output: everything the driver
// needs before path resolution or directory deferral.
type FileDescriptor struct {
	InodeID       uint32
	HardlinkCount uint16
	Mode          dumpfmt.Mode
	UID, GID      uint32
	Size          uint64
	AtimeUS       uint64
	MtimeUS       uint64
	CtimeUS       uint64
}

// Action is one step of the decoder's output protocol. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Action struct {
	Kind        ActionKind
	Skip        int
	Inode       FileDescriptor
	DataSize    int
	DataPadding int
}

type state int

const (
	stateWaitingFirstBlock state = iota
	stateReadingTapeHeader
	stateReadingCLRIHeader
	stateSkippingCLRIMap
	stateReadingBITSHeader
	stateSkippingBITSMap
	stateReadingRootInode
	stateWaitingDirectoryContent
	stateReadingDirectoryContent
	stateWaitingInode
	stateReadingInode
	stateReadingValidatedInode
	stateSkippingInodeContent
	stateWaitingContinuation
	stateReadingContinuation
	stateDone
)

// Decoder is the dump stream state machine. It performs no I/O itself: the
// caller feeds it one block at a time via SetBlock whenever Next returns an
// action that requires one.
type Decoder struct {
	state state

	contThen, contElse state

	block []byte
	tree  *Tree

	currentInode uint32
	blocksLeft   uint32
	contentLeft  uint64
}

// NewDecoder returns a decoder ready to process a dump volume from its
// first block.
func NewDecoder() *Decoder {
	return &Decoder{state: stateWaitingFirstBlock, tree: newTree()}
}

// SetBlock gives the decoder the most recently read block, which must be
// exactly dumpfmt.BlockSize bytes. The decoder keeps reading it, possibly
// across several calls to Next, until the next SetBlock; the caller owns
// the buffer.
func (d *Decoder) SetBlock(block []byte) {
	d.block = block
}

// ResolvePaths returns every absolute path under which inode is known.
func (d *Decoder) ResolvePaths(inode uint32) []string {
	return d.tree.ResolvePaths(inode)
}

// Parents returns the parent inode ids under which inode is known.
func (d *Decoder) Parents(inode uint32) []uint32 {
	return d.tree.Parents(inode)
}

// record decodes the current block without checksum/magic validation, for
// states that know the block was already validated by whoever fed it.
func (d *Decoder) record() dumpfmt.Record {
	rec, err := dumpfmt.DecodeRecord(d.block)
	if err != nil {
		// SetBlock's contract guarantees exactly BlockSize bytes; a
		// mismatch here means the driver broke the FEED_BLOCK protocol.
		panic(err)
	}
	return rec
}

func (d *Decoder) validate() (dumpfmt.Record, error) {
	if !dumpfmt.ChecksumOK(d.block) {
		return dumpfmt.Record{}, xerrors.New("dump: invalid record checksum")
	}
	rec := d.record()
	if rec.Magic != dumpfmt.MagicNFS {
		return dumpfmt.Record{}, xerrors.Errorf("dump: invalid magic %d, want %d", rec.Magic, dumpfmt.MagicNFS)
	}
	return rec, nil
}

// waitContinuation requests a fresh block (via WAITING_CONTINUATION) before
// deciding, at READING_CONTINUATION, whether the upcoming record is an ADDR
// continuation (then) or not (els).
func (d *Decoder) waitContinuation(then, els state) {
	d.contThen, d.contElse = then, els
	d.state = stateWaitingContinuation
}

// ifContinuation is the same decision, but for states whose own action
// already requested the next FEED_BLOCK — so the following Next call can go
// straight to READING_CONTINUATION instead of requesting a second block.
func (d *Decoder) ifContinuation(then, els state) {
	d.contThen, d.contElse = then, els
	d.state = stateReadingContinuation
}

func fileDescriptorFromRecord(rec dumpfmt.Record) FileDescriptor {
	return FileDescriptor{
		InodeID:       rec.InodeID,
		HardlinkCount: rec.Inode.HardlinkCount,
		Mode:          rec.Inode.Mode,
		UID:           rec.Inode.UID(),
		GID:           rec.Inode.GID(),
		Size:          rec.Inode.Size,
		AtimeUS:       rec.Inode.Atime.Micros(),
		MtimeUS:       rec.Inode.Mtime.Micros(),
		CtimeUS:       rec.Inode.Ctime.Micros(),
	}
}

// Next advances the state machine and returns the next action the driver
// must take. Call it again only after satisfying the returned action's
// contract (see ActionKind).
func (d *Decoder) Next() (Action, error) {
	for {
		switch d.state {
		case stateWaitingFirstBlock:
			d.state = stateReadingTapeHeader
			return Action{Kind: ActionFeedBlock}, nil

		case stateReadingTapeHeader:
			rec, err := d.validate()
			if err != nil {
				return Action{}, err
			}
			if rec.Type != dumpfmt.RecordTape {
				return Action{}, xerrors.Errorf("dump: expecting TAPE record, got %s", rec.Type)
			}
			d.state = stateReadingCLRIHeader
			return Action{Kind: ActionFeedBlock}, nil

		case stateReadingCLRIHeader:
			rec, err := d.validate()
			if err != nil {
				return Action{}, err
			}
			if rec.Type != dumpfmt.RecordCLRI {
				return Action{}, xerrors.Errorf("dump: expecting CLRI record, got %s", rec.Type)
			}
			d.state = stateSkippingCLRIMap
			continue

		case stateSkippingCLRIMap:
			rec := d.record()
			d.waitContinuation(stateSkippingCLRIMap, stateReadingBITSHeader)
			return Action{Kind: ActionSkip, Skip: int(rec.Count) * dumpfmt.BlockSize}, nil

		case stateReadingBITSHeader:
			rec, err := d.validate()
			if err != nil {
				return Action{}, err
			}
			if rec.Type != dumpfmt.RecordBits {
				return Action{}, xerrors.Errorf("dump: expecting BITS record, got %s", rec.Type)
			}
			d.state = stateSkippingBITSMap
			continue

		case stateSkippingBITSMap:
			rec := d.record()
			d.waitContinuation(stateSkippingBITSMap, stateReadingRootInode)
			return Action{Kind: ActionSkip, Skip: int(rec.Count) * dumpfmt.BlockSize}, nil

		case stateReadingRootInode:
			rec, err := d.validate()
			if err != nil {
				return Action{}, err
			}
			if rec.Type != dumpfmt.RecordInode {
				return Action{}, xerrors.Errorf("dump: expecting INODE record, got %s", rec.Type)
			}
			if rec.InodeID != rootInode {
				return Action{}, xerrors.Errorf("dump: expecting root inode (%d), got %d", rootInode, rec.InodeID)
			}
			d.currentInode = rec.InodeID
			d.blocksLeft = uint32(rec.Count)
			d.state = stateWaitingDirectoryContent
			return Action{Kind: ActionInode, Inode: fileDescriptorFromRecord(rec)}, nil

		case stateWaitingDirectoryContent:
			d.state = stateReadingDirectoryContent
			return Action{Kind: ActionFeedBlock}, nil

		case stateReadingDirectoryContent:
			entries, err := dumpfmt.DecodeDirEntries(d.block)
			if err != nil {
				return Action{}, xerrors.Errorf("dump: %w", err)
			}
			for _, e := range entries {
				if e.InodeID == 0 || e.Name == "." || e.Name == ".." {
					continue
				}
				d.tree.insert(e.InodeID, e.Name, d.currentInode)
			}
			d.blocksLeft--
			if d.blocksLeft == 0 {
				d.ifContinuation(stateReadingDirectoryContent, stateReadingValidatedInode)
			}
			return Action{Kind: ActionFeedBlock}, nil

		case stateWaitingInode:
			d.state = stateReadingInode
			return Action{Kind: ActionFeedBlock}, nil

		case stateReadingInode:
			if _, err := d.validate(); err != nil {
				return Action{}, err
			}
			d.state = stateReadingValidatedInode
			continue

		case stateReadingValidatedInode:
			rec := d.record()
			if rec.Type == dumpfmt.RecordEnd {
				d.state = stateDone
				return Action{Kind: ActionSkip, Skip: int(rec.Count) * dumpfmt.BlockSize}, nil
			}
			if rec.Type != dumpfmt.RecordInode {
				return Action{}, xerrors.Errorf("dump: expecting INODE record, got %s", rec.Type)
			}
			fd := fileDescriptorFromRecord(rec)
			switch {
			case rec.Inode.Mode.Kind() == dumpfmt.KindDirectory:
				d.currentInode = rec.InodeID
				d.blocksLeft = uint32(rec.Count)
				d.state = stateWaitingDirectoryContent
			case rec.Inode.Size > 0:
				d.contentLeft = rec.Inode.Size
				d.state = stateSkippingInodeContent
			default:
				d.state = stateWaitingInode
			}
			return Action{Kind: ActionInode, Inode: fd}, nil

		case stateSkippingInodeContent:
			rec := d.record()
			total := uint64(rec.Count) * dumpfmt.BlockSize
			size := d.contentLeft
			if total < size {
				size = total
			}
			d.contentLeft -= size
			d.waitContinuation(stateSkippingInodeContent, stateReadingValidatedInode)
			return Action{Kind: ActionData, DataSize: int(size), DataPadding: int(total - size)}, nil

		case stateWaitingContinuation:
			d.state = stateReadingContinuation
			return Action{Kind: ActionFeedBlock}, nil

		case stateReadingContinuation:
			rec, err := d.validate()
			if err != nil {
				return Action{}, err
			}
			if rec.Type == dumpfmt.RecordAddr {
				d.state = d.contThen
			} else {
				d.state = d.contElse
			}
			continue

		case stateDone:
			return Action{Kind: ActionDone}, nil

		default:
			return Action{}, xerrors.Errorf("dump: unhandled decoder state %d", d.state)
		}
	}
}
