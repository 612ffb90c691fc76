package fileengine

import (
	"github.com/vax11/almmmost/internal/direntry"
	"github.com/vax11/almmmost/internal/fileerr"
	"github.com/vax11/almmmost/internal/imagestore"
	"github.com/vax11/almmmost/internal/oft"
)

// Position is the FCB cursor state needed to derive a record position, per
// spec.md §4.5.
type Position struct {
	S2     byte
	CurExt byte
	CurRec byte
	RRec   [3]byte
}

// SeqPos computes the sequential record position: (s2<<12)+(curext<<7)+currec.
func (p Position) SeqPos() int {
	return int(p.S2)<<12 | int(p.CurExt)<<7 | int(p.CurRec)
}

// RandPos computes the random record position from rrec[0..2] little-endian.
func (p Position) RandPos() int {
	return int(p.RRec[2])<<16 | int(p.RRec[1])<<8 | int(p.RRec[0])
}

// extBlk splits a record position into (logical extent index, block index
// within that extent), per spec.md §4.5.
func extBlk(pos, exm, bsf int) (ext, blk int) {
	recsPerExt := (exm + 1) * 128
	ext = pos / recsPerExt
	blk = (pos % recsPerExt) >> uint(bsf)
	return
}

// RWResult carries data read and the FCB refresh state common to both read
// and write paths.
type RWResult struct {
	Data        [128]byte
	Al          [16]byte
	SizeRecords int
}

// readAt performs one record read at pos against entry, per spec.md §4.5's
// Read Seq/Rand contract.
func (e *Engine) readAt(d *imagestore.Disk, driveDir int, entry *oft.Entry, pos int) (RWResult, error) {
	var res RWResult
	ext, blk := extBlk(pos, d.Params.EXM, d.Params.BSF)
	if ext < 0 || ext >= len(entry.Extents) {
		return res, fileerr.ErrUnwrittenExtent
	}
	er := entry.Extents[ext]
	res.Al = direntry.EncodeBlocks(er.Blocks, d.Params.DBM)
	res.SizeRecords = entry.SizeRecords
	if blk >= 16 || er.Blocks[blk] == 0 || pos >= entry.SizeRecords {
		return res, fileerr.ErrUnwrittenData
	}
	recRel := (pos & d.Params.BLM) + int(er.Blocks[blk])<<uint(d.Params.BSF)
	raw, err := imagestore.ReadRec(d, driveDir, recRel)
	if err != nil {
		return res, err
	}
	copy(res.Data[:], raw)
	return res, nil
}

// ReadSeq implements BDOS 20.
func (e *Engine) ReadSeq(port, disk int, handle uint16, pos Position) (RWResult, Position, error) {
	return e.readWithAdvance(port, disk, handle, pos, pos.SeqPos(), true)
}

// ReadRand implements BDOS 33.
func (e *Engine) ReadRand(port, disk int, handle uint16, pos Position) (RWResult, Position, error) {
	return e.readWithAdvance(port, disk, handle, pos, pos.RandPos(), false)
}

func (e *Engine) readWithAdvance(port, disk int, handle uint16, pos Position, recPos int, sequential bool) (RWResult, Position, error) {
	d, err := e.diskAt(disk)
	if err != nil {
		return RWResult{}, pos, err
	}
	entry := e.OFT.Get(int(handle))
	if entry == nil {
		return RWResult{}, pos, fileerr.ErrBadSelect
	}
	if trap, ok := specialTrap(entry); ok {
		rec, terr := trap.ReadRecord(recPos)
		var res RWResult
		res.Data = rec
		if terr != nil {
			return res, pos, fileerr.ErrUnwrittenData
		}
		return res, advance(pos, sequential), nil
	}
	res, err := e.readAt(d, e.driveDir(port, disk), entry, recPos)
	return res, advanceIf(pos, sequential, err), err
}

func advance(pos Position, sequential bool) Position {
	if !sequential {
		return pos
	}
	next := pos.SeqPos() + 1
	pos.CurRec = byte(next & 0x7F)
	pos.CurExt = byte((next >> 7) & 0x1F)
	pos.S2 = byte((next >> 12) & 0xFF)
	return pos
}

func advanceIf(pos Position, sequential bool, err error) Position {
	if err != nil {
		return pos
	}
	return advance(pos, sequential)
}

// WriteMode distinguishes the three write BDOS calls, which share position
// derivation and allocation logic but differ in advance/zero-fill behavior.
type WriteMode int

const (
	WriteModeSeq WriteMode = iota
	WriteModeRand
	WriteModeRandZero
)

// WriteAt performs one record write at the position implied by pos and
// mode against handle, allocating extents/blocks as needed, per spec.md
// §4.5's Write Seq/Rand/RandZero contract.
func (e *Engine) WriteAt(port, disk int, handle uint16, pos Position, mode WriteMode, data [128]byte) (RWResult, Position, error) {
	var res RWResult
	d, err := e.diskAt(disk)
	if err != nil {
		return res, pos, err
	}
	entry := e.OFT.Get(int(handle))
	if entry == nil {
		return res, pos, fileerr.ErrBadSelect
	}
	if entry.RO {
		return res, pos, fileerr.ErrWriteProt
	}

	var recPos int
	sequential := mode == WriteModeSeq
	if sequential {
		recPos = pos.SeqPos()
	} else {
		recPos = pos.RandPos()
	}

	if trap, ok := specialTrap(entry); ok {
		if err := trap.WriteRecord(recPos, data); err != nil {
			return res, pos, fileerr.ErrWriteProt
		}
		return res, advance(pos, sequential), nil
	}

	driveDir := e.driveDir(port, disk)
	ext, blk := extBlk(recPos, d.Params.EXM, d.Params.BSF)

	for len(entry.Extents) <= ext {
		newIdx := len(entry.Extents)
		deIndex, err := allocDE(d, driveDir)
		if err != nil {
			return res, pos, err
		}
		var de direntry.DE
		de.User = entry.User
		de.Name = entry.Name
		de.Ext = entry.Ext
		de.SetExtentNumber(newIdx)
		if err := writeDE(d, driveDir, deIndex, de); err != nil {
			return res, pos, err
		}
		entry.Extents = append(entry.Extents, oft.ExtentRec{DEIndex: deIndex})
	}

	er := &entry.Extents[ext]
	newBlock := false
	if er.Blocks[blk] == 0 {
		blkNo, err := allocBlock(d, er.DEIndex)
		if err != nil {
			return res, pos, err
		}
		er.Blocks[blk] = uint16(blkNo)
		newBlock = true
	}

	recRel := (recPos & d.Params.BLM) + int(er.Blocks[blk])<<uint(d.Params.BSF)

	if mode == WriteModeRandZero && (recPos&d.Params.BLM) == 0 && newBlock {
		blockSizeRecs := 1 << uint(d.Params.BSF)
		var zero [128]byte
		blockBaseRel := int(er.Blocks[blk]) << uint(d.Params.BSF)
		for i := 0; i < blockSizeRecs; i++ {
			if err := imagestore.WriteRec(d, driveDir, blockBaseRel+i, zero[:]); err != nil {
				return res, pos, err
			}
		}
	}

	if err := imagestore.WriteRec(d, driveDir, recRel, data[:]); err != nil {
		return res, pos, err
	}

	localInExt := recPos % ((d.Params.EXM + 1) * 128)
	if localInExt+1 > er.ExtSizeRecords {
		er.ExtSizeRecords = localInExt + 1
	}
	if recPos+1 > entry.SizeRecords {
		entry.SizeRecords = recPos + 1
	}

	// Eagerly allocate the next DE when this write lands on the last
	// record of its logical extent, per spec.md §4.5.
	recsPerExt := (d.Params.EXM + 1) * 128
	if (recPos+1)%recsPerExt == 0 && len(entry.Extents) == ext+1 {
		newIdx := len(entry.Extents)
		deIndex, derr := allocDE(d, driveDir)
		if derr == nil {
			var de direntry.DE
			de.User = entry.User
			de.Name = entry.Name
			de.Ext = entry.Ext
			de.SetExtentNumber(newIdx)
			if writeDE(d, driveDir, deIndex, de) == nil {
				entry.Extents = append(entry.Extents, oft.ExtentRec{DEIndex: deIndex})
			}
		}
	}

	res.Al = direntry.EncodeBlocks(er.Blocks, d.Params.DBM)
	res.SizeRecords = entry.SizeRecords
	return res, advance(pos, sequential), nil
}

// GetSize implements BDOS 35: load rrec = size_records, refresh al[] from
// the last extent.
func (e *Engine) GetSize(disk int, handle uint16) (rrec [3]byte, al [16]byte, err error) {
	d, derr := e.diskAt(disk)
	if derr != nil {
		return rrec, al, derr
	}
	entry := e.OFT.Get(int(handle))
	if entry == nil {
		return rrec, al, fileerr.ErrBadSelect
	}
	sz := entry.SizeRecords
	rrec[0] = byte(sz)
	rrec[1] = byte(sz >> 8)
	rrec[2] = byte(sz >> 16)
	if len(entry.Extents) > 0 {
		last := entry.Extents[len(entry.Extents)-1]
		al = direntry.EncodeBlocks(last.Blocks, d.Params.DBM)
	}
	return rrec, al, nil
}

// SetRandomRecord implements BDOS 36, per spec.md §4.5 and DESIGN.md Open
// Question 2: reproduces the source's fcb_pos formula exactly, including
// its unusual currec==0x80 branch, which needs the disk's EXM to compute
// the record past the last valid extent.
func (e *Engine) SetRandomRecord(disk int, handle uint16, pos Position) ([3]byte, error) {
	d, derr := e.diskAt(disk)
	if derr != nil {
		return [3]byte{}, derr
	}
	entry := e.OFT.Get(int(handle))
	if entry == nil {
		return [3]byte{}, fileerr.ErrBadSelect
	}
	var fcbPos int
	if pos.CurRec == 0x80 {
		fcbPos = (int(pos.S2)*32 + int(pos.CurExt&0x1F) + int(d.Params.EXM) + 1) * 128
	} else {
		fcbPos = pos.SeqPos()
	}
	if fcbPos > entry.SizeRecords {
		fcbPos = entry.SizeRecords
	}
	var rrec [3]byte
	rrec[0] = byte(fcbPos)
	rrec[1] = byte(fcbPos >> 8)
	rrec[2] = byte(fcbPos >> 16)
	return rrec, nil
}

func specialTrap(entry *oft.Entry) (interface {
	ReadRecord(int) ([128]byte, error)
	WriteRecord(int, [128]byte) error
}, bool) {
	t, ok := entry.Trap.(interface {
		ReadRecord(int) ([128]byte, error)
		WriteRecord(int, [128]byte) error
	})
	return t, ok
}
