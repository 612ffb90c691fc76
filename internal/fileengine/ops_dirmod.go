package fileengine

import (
	"github.com/vax11/almmmost/internal/direntry"
	"github.com/vax11/almmmost/internal/fileerr"
	"github.com/vax11/almmmost/internal/imagestore"
)

// walkMatching scans every directory record, invoking fn on each non-free
// entry matching user/pattern (ignoring extent number — callers that care
// about a specific extent filter inside fn). fn returns true to request the
// (possibly modified) entry be written back.
func walkMatching(d *imagestore.Disk, driveDir int, user byte, pattern direntry.NameExt, anyUser bool, fn func(de *direntry.DE) bool) error {
	recs := dirRecordCount(d)
	for rec := 0; rec < recs; rec++ {
		des, err := readDERecord(d, driveDir, rec)
		if err != nil {
			return err
		}
		dirty := false
		for slot := range des {
			de := &des[slot]
			if de.IsFree() {
				continue
			}
			if !anyUser && de.User != user {
				continue
			}
			if !direntry.SameFile(pattern, de.Combined()) {
				continue
			}
			if fn(de) {
				dirty = true
			}
		}
		if dirty {
			if err := writeDERecord(d, driveDir, rec, des); err != nil {
				return err
			}
		}
	}
	return nil
}

// openMatchConflict scans every directory entry matching user/pattern for
// one currently open on any port, without modifying anything. It mirrors
// alm_modify_dir's upfront pass over fileinfo[]: the whole match set is
// checked before any directory record is touched, so a wildcard spanning
// several records can't partially apply before hitting a conflict.
func openMatchConflict(e *Engine, d *imagestore.Disk, driveDir, disk int, user byte, pattern direntry.NameExt) (bool, error) {
	conflict := false
	err := walkMatching(d, driveDir, user, pattern, false, func(de *direntry.DE) bool {
		if e.OFT.FindOpenByName(disk, de.User, de.Combined()) {
			conflict = true
		}
		return false
	})
	return conflict, err
}

// Delete implements BDOS 19: mark every matching, non-open directory entry
// free and release its blocks back to the BAM, per spec.md §4.5. If any
// matching entry is currently open on any port, the whole operation is
// rejected before any directory record is modified.
func (e *Engine) Delete(port, disk int, user byte, name [8]byte, ext [3]byte) error {
	d, err := e.diskAt(disk)
	if err != nil {
		return err
	}
	pattern := combine(name, ext)
	driveDir := e.driveDir(port, disk)

	conflict, err := openMatchConflict(e, d, driveDir, disk, user, pattern)
	if err != nil {
		return err
	}
	if conflict {
		return fileerr.ErrMiscErr
	}

	return walkMatching(d, driveDir, user, pattern, false, func(de *direntry.DE) bool {
		deallocBlocks(d, de.Blocks)
		de.User = direntry.FreeUser
		return true
	})
}

// Rename implements BDOS 23: rewrite name/ext on every matching, non-open
// directory entry to the destination name carried in the FCB's rename-form
// fields, per spec.md §4.5. The destination must not itself contain a '?'.
func (e *Engine) Rename(port, disk int, user byte, name [8]byte, ext [3]byte, destName [8]byte, destExt [3]byte) error {
	for _, c := range destName {
		if c == '?' {
			return fileerr.ErrBadFile
		}
	}
	for _, c := range destExt {
		if c == '?' {
			return fileerr.ErrBadFile
		}
	}
	d, err := e.diskAt(disk)
	if err != nil {
		return err
	}
	pattern := combine(name, ext)
	driveDir := e.driveDir(port, disk)

	conflict, err := openMatchConflict(e, d, driveDir, disk, user, pattern)
	if err != nil {
		return err
	}
	if conflict {
		return fileerr.ErrMiscErr
	}

	return walkMatching(d, driveDir, user, pattern, false, func(de *direntry.DE) bool {
		de.Name = destName
		de.Ext = destExt
		return true
	})
}

// SetAttr implements BDOS 30: overwrite the attribute bits (the high bit of
// each name/ext byte) on every matching, non-open directory entry from the
// FCB's own attribute bits, leaving the low 7 bits of each byte untouched,
// per spec.md §4.5.
func (e *Engine) SetAttr(port, disk int, user byte, name [8]byte, ext [3]byte) error {
	d, err := e.diskAt(disk)
	if err != nil {
		return err
	}
	pattern := combine(name, ext)
	driveDir := e.driveDir(port, disk)

	conflict, err := openMatchConflict(e, d, driveDir, disk, user, pattern)
	if err != nil {
		return err
	}
	if conflict {
		return fileerr.ErrMiscErr
	}

	return walkMatching(d, driveDir, user, pattern, false, func(de *direntry.DE) bool {
		dirty := false
		for i := 0; i < 8; i++ {
			if (de.Name[i] & 0x80) != (name[i] & 0x80) {
				de.Name[i] = (de.Name[i] & 0x7F) | (name[i] & 0x80)
				dirty = true
			}
		}
		for i := 0; i < 3; i++ {
			if (de.Ext[i] & 0x80) != (ext[i] & 0x80) {
				de.Ext[i] = (de.Ext[i] & 0x7F) | (ext[i] & 0x80)
				dirty = true
			}
		}
		return dirty
	})
}
