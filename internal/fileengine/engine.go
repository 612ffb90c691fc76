// Package fileengine implements the BDOS-like file operations (Open, Make,
// Close, Read Seq/Rand, Write Seq/Rand/RandZero, Search First, Delete,
// Rename, Set Attr, Get Size, Set Random Record) on top of the image
// store, directory engine, block allocation map, open-file table and
// special-file trap registry, per spec.md §4.2/§4.5 and
// original_source/almmmost/almmmost_file.c.
package fileengine

import (
	"github.com/vax11/almmmost/internal/bam"
	"github.com/vax11/almmmost/internal/direntry"
	"github.com/vax11/almmmost/internal/fileerr"
	"github.com/vax11/almmmost/internal/imagestore"
	"github.com/vax11/almmmost/internal/oft"
	"github.com/vax11/almmmost/internal/special"
)

// PortInfo is per-port runtime state: which private directory slot the
// port has selected on each disk, and its autologon/default-drive
// defaults, per original_source/almmmost/almmmost.h's user_port_data_t.
type PortInfo struct {
	DriveDir  []int // index by disk number
	AutoLogon bool
	DefDrive  int
}

// Engine is the single owned value carrying every piece of process-wide
// state the file engine touches, per spec.md §9's "avoid globals" note.
type Engine struct {
	Disks   []*imagestore.Disk
	Ports   []*PortInfo
	OFT     *oft.Table
	Special *special.Registry

	MaxFiles int
}

// NewEngine constructs an Engine over already-configured disks and ports.
func NewEngine(disks []*imagestore.Disk, numPorts, maxFiles int) *Engine {
	ports := make([]*PortInfo, numPorts)
	for i := range ports {
		ports[i] = &PortInfo{DriveDir: make([]int, len(disks))}
	}
	return &Engine{
		Disks:    disks,
		Ports:    ports,
		OFT:      oft.NewTable(maxFiles),
		Special:  special.NewRegistry(),
		MaxFiles: maxFiles,
	}
}

// driveDir returns the active private-slot selection for port on disk.
func (e *Engine) driveDir(port, disk int) int {
	if port < 0 || port >= len(e.Ports) {
		return 0
	}
	if disk < 0 || disk >= len(e.Ports[port].DriveDir) {
		return 0
	}
	return e.Ports[port].DriveDir[disk]
}

// diskAt resolves a disk index, failing with ErrBadSelect if out of range.
func (e *Engine) diskAt(disk int) (*imagestore.Disk, error) {
	if disk < 0 || disk >= len(e.Disks) || e.Disks[disk] == nil {
		return nil, fileerr.ErrBadSelect
	}
	return e.Disks[disk], nil
}

// dirRecordCount returns the number of 128-byte directory records on disk.
func dirRecordCount(d *imagestore.Disk) int {
	return d.Params.DirRecMax - d.Params.DirRecMin + 1
}

// readDERecord reads one directory record (4 DEs) at dirRec (0-based,
// relative to dir_rec_min).
func readDERecord(d *imagestore.Disk, driveDir, dirRec int) ([4]direntry.DE, error) {
	var out [4]direntry.DE
	raw, err := imagestore.ReadRec(d, driveDir, dirRec)
	if err != nil {
		return out, err
	}
	for i := 0; i < 4; i++ {
		out[i] = direntry.Decode(raw[i*direntry.Size:(i+1)*direntry.Size], d.Params.DBM)
	}
	return out, nil
}

// writeDERecord writes a full directory record (4 DEs) back at dirRec.
func writeDERecord(d *imagestore.Disk, driveDir, dirRec int, des [4]direntry.DE) error {
	buf := make([]byte, imagestore.RecordSize)
	for i := 0; i < 4; i++ {
		copy(buf[i*direntry.Size:(i+1)*direntry.Size], des[i].Encode(d.Params.DBM))
	}
	return imagestore.WriteRec(d, driveDir, dirRec, buf)
}

// deIndexToRecordSlot splits a directory-entry index into its record
// number and slot-within-record (4 DEs per 128-byte record).
func deIndexToRecordSlot(deIndex int) (rec, slot int) {
	return deIndex / 4, deIndex % 4
}

// locateResult carries a found directory entry plus its coordinates.
type locateResult struct {
	DEIndex int
	DE      direntry.DE
}

// locateExt scans the whole directory for the entry matching user/pattern
// at a specific physical extent number, per spec.md §4.2's Locate
// operation. When anyUser is true (FCB.Drv=='?'), the user code is ignored
// and deleted entries (User==0xE5) are included, matching CP/M's Search
// First wildcard semantics. peWant is compared against each entry's physical
// extent number, computed with the disk's real EXM.
func locateExt(d *imagestore.Disk, driveDir int, user byte, pattern direntry.NameExt, peWant int, anyUser bool) (*locateResult, error) {
	recs := dirRecordCount(d)
	for rec := 0; rec < recs; rec++ {
		des, err := readDERecord(d, driveDir, rec)
		if err != nil {
			return nil, err
		}
		for slot, de := range des {
			if !anyUser {
				if de.IsFree() || de.User != user {
					continue
				}
			}
			if !direntry.SameFile(pattern, de.Combined()) {
				continue
			}
			if de.PE(d.Params.EXM) != peWant {
				continue
			}
			return &locateResult{DEIndex: rec*4 + slot, DE: des[slot]}, nil
		}
	}
	return nil, nil
}

// allocDE finds the first free (User==0xE5) directory slot and returns its
// coordinates without writing anything yet (the caller fills in the entry
// and calls writeDE).
func allocDE(d *imagestore.Disk, driveDir int) (deIndex int, err error) {
	recs := dirRecordCount(d)
	for rec := 0; rec < recs; rec++ {
		des, err := readDERecord(d, driveDir, rec)
		if err != nil {
			return 0, err
		}
		for slot, de := range des {
			if de.IsFree() {
				return rec*4 + slot, nil
			}
		}
	}
	return 0, fileerr.ErrDirFull
}

// writeDE writes a single directory entry at deIndex, read-modify-write of
// its containing 4-DE record.
func writeDE(d *imagestore.Disk, driveDir, deIndex int, de direntry.DE) error {
	rec, slot := deIndexToRecordSlot(deIndex)
	des, err := readDERecord(d, driveDir, rec)
	if err != nil {
		return err
	}
	des[slot] = de
	return writeDERecord(d, driveDir, rec, des)
}

// blockReservedBoundary returns the first block eligible for allocation on d.
func blockReservedBoundary(d *imagestore.Disk) int {
	return bam.ReservedBlocks(d.Params.DBL, d.Params.BSF)
}

// allocBlock allocates a free block on d. Matching alm_file_allocblk,
// only PUBLIC/PUBLIC_ONLY disks carry a BAM; PRIVATE disks have none and
// always fail here (this reproduces the original's limitation rather than
// working around it — see DESIGN.md).
func allocBlock(d *imagestore.Disk, deIndex int) (int, error) {
	if d.BAM == nil {
		return 0, fileerr.ErrNoSpace
	}
	blk, err := d.BAM.Alloc(blockReservedBoundary(d), deIndex)
	if err != nil {
		return 0, fileerr.ErrNoSpace
	}
	return blk, nil
}

func deallocBlocks(d *imagestore.Disk, blocks [16]uint16) {
	if d.BAM == nil {
		return
	}
	for _, b := range blocks {
		if b != 0 {
			d.BAM.Dealloc(int(b))
		}
	}
}

// BuildBAM rebuilds disk d's block allocation map by scanning every
// non-deleted directory entry, per spec.md §4.3 and almmmost_file.c's
// alm_file_loadbam. Only meaningful for PUBLIC disks (d.BAM != nil); driveDir
// is always 0 since a PUBLIC disk has a single image slot.
func BuildBAM(d *imagestore.Disk, driveDir int) error {
	if d.BAM == nil {
		return nil
	}
	d.BAM.Reset()
	recs := dirRecordCount(d)
	for rec := 0; rec < recs; rec++ {
		des, err := readDERecord(d, driveDir, rec)
		if err != nil {
			return err
		}
		for slot, de := range des {
			if de.IsFree() {
				continue
			}
			deIndex := rec*4 + slot
			for _, b := range de.Blocks {
				if b != 0 {
					d.BAM.Mark(int(b), deIndex)
				}
			}
		}
	}
	return nil
}
