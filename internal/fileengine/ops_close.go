package fileengine

import (
	"github.com/vax11/almmmost/internal/direntry"
	"github.com/vax11/almmmost/internal/imagestore"
	"github.com/vax11/almmmost/internal/oft"
	"github.com/vax11/almmmost/internal/special"
)

// flushExtents rewrites every extent of entry back to the directory,
// recomputing ext_l/ext_h/reccnt from each extent's size and index, per
// spec.md §4.2's "Rewrite extents" and almmmost_file.c's
// alm_file_rewrite_extents. Must touch only private state and perform only
// record-aligned image I/O (spec.md §9's signal-safety note).
func flushExtents(d *imagestore.Disk, driveDir int, entry *oft.Entry) error {
	for i, ext := range entry.Extents {
		var de direntry.DE
		de.User = entry.User
		de.Name = entry.Name
		de.Ext = entry.Ext
		de.Blocks = ext.Blocks
		de.SetExtentNumber(i)
		de.SetExtentSizeRecords(d.Params.EXM, ext.ExtSizeRecords)
		if err := writeDE(d, driveDir, ext.DEIndex, de); err != nil {
			return err
		}
	}
	return nil
}

// Close implements BDOS 16: resolve the handle, invoke the special-file
// close hook if applicable, flush dirty extents, and free the OFT slot.
// The wire handle 0xFFFF is returned regardless of whether a matching open
// entry was found, matching the original's unconditional response.
func (e *Engine) Close(port, disk int, user byte, name [8]byte, ext [3]byte, hint uint16) (uint16, error) {
	pattern := combine(name, ext)
	h := e.OFT.ResolveHandle(int(hint), port, disk, user, pattern)
	if h == 0 {
		return 0xFFFF, nil
	}
	entry := e.OFT.Get(h)
	if entry == nil {
		return 0xFFFF, nil
	}
	if trap, ok := entry.Trap.(special.Trap); ok && trap != nil {
		_ = trap.Close()
	} else {
		d, err := e.diskAt(disk)
		if err == nil {
			if ferr := flushExtents(d, e.driveDir(port, disk), entry); ferr != nil {
				e.OFT.Free(h)
				return 0xFFFF, ferr
			}
		}
	}
	e.OFT.Free(h)
	return 0xFFFF, nil
}

// ClosePort implements the console/port-wide clear: flush and free every
// entry owned by port, per spec.md §5's shared-resource rules.
func (e *Engine) ClosePort(port int) {
	e.OFT.ClearPort(port, func(entry *oft.Entry) {
		if trap, ok := entry.Trap.(special.Trap); ok && trap != nil {
			_ = trap.Close()
			return
		}
		d, err := e.diskAt(entry.Disk)
		if err != nil {
			return
		}
		_ = flushExtents(d, e.driveDir(port, entry.Disk), entry)
	})
}

// Sync flushes every currently open entry across all ports without closing
// them, per spec.md §6.5's "sync" console command and almmmost_file.c's
// alm_file_sync.
func (e *Engine) Sync() error {
	for _, entry := range e.OFT.All() {
		if entry.Trap != nil {
			continue
		}
		d, err := e.diskAt(entry.Disk)
		if err != nil {
			continue
		}
		if err := flushExtents(d, e.driveDir(entry.Port, entry.Disk), entry); err != nil {
			return err
		}
	}
	return nil
}
