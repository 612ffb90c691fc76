// Package imagestore provides fixed-size (128-byte) record random access to
// host-side disk-image files, one per private directory slot (or slot 0 for
// PUBLIC disks), matching almmmost_image.c's alm_img_readrec/writerec/reopen.
package imagestore

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/vax11/almmmost/internal/bam"
	"github.com/vax11/almmmost/internal/diskparam"
	"github.com/vax11/almmmost/internal/fileerr"
)

// RecordSize is the fixed CP/M logical record size in bytes.
const RecordSize = 128

// Slot is one open image file backing a private directory or the single
// PUBLIC image.
type Slot struct {
	Path string
	File *os.File
	RO   bool
}

// Disk is one logical disk's parameters plus its backing image slot(s).
type Disk struct {
	Params *diskparam.Params
	Slots  []*Slot  // index 0 used directly for PUBLIC/PUBLIC_ONLY
	BAM    *bam.BAM // non-nil only for PUBLIC/PUBLIC_ONLY disks
}

// Store holds every configured logical disk.
type Store struct {
	Disks []*Disk
}

// New creates an empty Store sized for n logical disks.
func New(n int) *Store {
	return &Store{Disks: make([]*Disk, n)}
}

// resolveSlot picks the active image slot for disk d given the requesting
// port's selected private directory (driveDir), per spec.md §4.1.
func resolveSlot(d *Disk, driveDir int) (*Slot, error) {
	if d == nil {
		return nil, fileerr.ErrBadSelect
	}
	idx := 0
	if d.Params.Kind == diskparam.Private {
		idx = driveDir
	}
	if idx < 0 || idx >= len(d.Slots) {
		return nil, fileerr.ErrBadSelect
	}
	slot := d.Slots[idx]
	if slot == nil || slot.File == nil {
		return nil, fileerr.ErrBadSelect
	}
	return slot, nil
}

// ReadRec reads one 128-byte record at rec (relative to dir_rec_min, i.e.
// record 0 is the first directory record) from disk d, resolving the
// active slot for driveDir.
func ReadRec(d *Disk, driveDir, rec int) ([]byte, error) {
	slot, err := resolveSlot(d, driveDir)
	if err != nil {
		return nil, err
	}
	if rec < 0 || rec > d.Params.DataRecMax-d.Params.DirRecMin {
		return nil, fileerr.ErrBadSelect
	}
	buf := make([]byte, RecordSize)
	off := int64(d.Params.DirRecMin+rec) * RecordSize
	n, err := slot.File.ReadAt(buf, off)
	if err != nil && n != RecordSize {
		return nil, errors.Wrapf(err, "imagestore: read record %d of %s", rec, slot.Path)
	}
	return buf, nil
}

// WriteRec writes one 128-byte record at rec. Fails with ErrWriteProt if the
// resolved slot is read-only.
func WriteRec(d *Disk, driveDir, rec int, data []byte) error {
	slot, err := resolveSlot(d, driveDir)
	if err != nil {
		return err
	}
	if slot.RO {
		return fileerr.ErrWriteProt
	}
	if rec < 0 || rec > d.Params.DataRecMax-d.Params.DirRecMin {
		return fileerr.ErrBadSelect
	}
	if len(data) != RecordSize {
		return fmt.Errorf("imagestore: write record: expected %d bytes, got %d", RecordSize, len(data))
	}
	off := int64(d.Params.DirRecMin+rec) * RecordSize
	if _, err := slot.File.WriteAt(data, off); err != nil {
		return errors.Wrapf(err, "imagestore: write record %d of %s", rec, slot.Path)
	}
	return nil
}

// OpenSlot opens (or creates) the image file backing one slot of disk d.
func OpenSlot(d *Disk, slotIdx int, path string, ro bool, create bool) error {
	if slotIdx < 0 {
		return fmt.Errorf("imagestore: invalid slot %d", slotIdx)
	}
	for len(d.Slots) <= slotIdx {
		d.Slots = append(d.Slots, nil)
	}
	flags := os.O_RDWR
	if ro {
		flags = os.O_RDONLY
	}
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return errors.Wrapf(err, "imagestore: open %s", path)
	}
	d.Slots[slotIdx] = &Slot{Path: path, File: f, RO: ro}
	return nil
}

// Reopen replaces the image handle for slot slotIdx on disk d. PUBLIC and
// PUBLIC_ONLY disks reject reopen outright with ErrBadKind-equivalent
// (ErrDrvType) — see DESIGN.md Open Question 1. onClose, when non-nil, is
// invoked first to let the caller close every open file on the disk (only
// meaningful for PUBLIC, but reopen is forbidden there; kept for symmetry
// with the original's call site).
func Reopen(d *Disk, slotIdx int, path string, ro bool, onClose func()) error {
	if d.Params.Kind == diskparam.Public || d.Params.Kind == diskparam.PublicOnly {
		return fileerr.ErrDrvType
	}
	if onClose != nil {
		onClose()
	}
	if slotIdx >= 0 && slotIdx < len(d.Slots) && d.Slots[slotIdx] != nil && d.Slots[slotIdx].File != nil {
		_ = d.Slots[slotIdx].File.Close()
	}
	return OpenSlot(d, slotIdx, path, ro, false)
}
