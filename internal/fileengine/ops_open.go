package fileengine

import (
	"github.com/vax11/almmmost/internal/direntry"
	"github.com/vax11/almmmost/internal/fileerr"
	"github.com/vax11/almmmost/internal/imagestore"
	"github.com/vax11/almmmost/internal/oft"
	"github.com/vax11/almmmost/internal/special"
)

// loadExtents walks every physical extent (PE=0,1,2,...) of a file already
// located at PE=0, collecting them into OFT extent records, per spec.md
// §3.3's "extents ordered by physical extent number, contiguous from 0".
func loadExtents(d *imagestore.Disk, driveDir int, user byte, pattern direntry.NameExt) ([]oft.ExtentRec, int) {
	var extents []oft.ExtentRec
	size := 0
	for pe := 0; ; pe++ {
		res, err := locateExt(d, driveDir, user, pattern, pe, false)
		if err != nil || res == nil {
			break
		}
		er := oft.ExtentRec{
			DEIndex:        res.DEIndex,
			Blocks:         res.DE.Blocks,
			ExtSizeRecords: res.DE.ExtentSizeRecords(d.Params.EXM),
		}
		extents = append(extents, er)
		size += er.ExtSizeRecords
	}
	return extents, size
}

// OpenResult carries the outcome of Open/Make/SearchFirst.
type OpenResult struct {
	Handle  uint16
	RetCode byte
	Err     byte
}

// openOrMake implements BDOS 15 (Open) and 22 (Make), per spec.md §4.5.
func (e *Engine) openOrMake(port, disk int, user byte, name [8]byte, ext [3]byte, isMake bool) (OpenResult, error) {
	d, err := e.diskAt(disk)
	if err != nil {
		return OpenResult{}, err
	}
	driveDir := e.driveDir(port, disk)
	pattern := combine(name, ext)

	if trap, ok := e.Special.Lookup(special.Canonicalize(name, ext)); ok {
		if err := trap.Open(user); err != nil {
			return OpenResult{RetCode: fileerr.RetMiscErr}, nil
		}
		entry := &oft.Entry{Disk: disk, User: user, Port: port, Name: name, Ext: ext, Trap: trap}
		h := e.OFT.Alloc(entry)
		if h == 0 {
			return OpenResult{}, fileerr.ErrNoSpace
		}
		return OpenResult{Handle: uint16(h), RetCode: 0}, nil
	}

	res, err := locateExt(d, driveDir, user, pattern, 0, false)
	if err != nil {
		return OpenResult{}, err
	}

	var deIndex int
	if isMake {
		if res != nil {
			return OpenResult{RetCode: fileerr.RetMiscErr}, nil
		}
		deIndex, err = allocDE(d, driveDir)
		if err != nil {
			return OpenResult{}, err
		}
		var de direntry.DE
		de.User = user
		de.Name = name
		de.Ext = ext
		if err := writeDE(d, driveDir, deIndex, de); err != nil {
			return OpenResult{}, err
		}
	} else {
		if res == nil {
			return OpenResult{RetCode: fileerr.RetMiscErr}, nil
		}
		deIndex = res.DEIndex
	}

	extents, size := loadExtents(d, driveDir, user, pattern)
	entry := &oft.Entry{
		Disk: disk, User: user, Port: port, Name: name, Ext: ext,
		SizeRecords: size, Extents: extents,
	}
	h := e.OFT.Alloc(entry)
	if h == 0 {
		return OpenResult{}, fileerr.ErrNoSpace
	}
	return OpenResult{Handle: uint16(h), RetCode: byte(deIndex & 3)}, nil
}

// Open implements BDOS 15.
func (e *Engine) Open(port, disk int, user byte, name [8]byte, ext [3]byte) (OpenResult, error) {
	return e.openOrMake(port, disk, user, name, ext, false)
}

// Make implements BDOS 22.
func (e *Engine) Make(port, disk int, user byte, name [8]byte, ext [3]byte) (OpenResult, error) {
	return e.openOrMake(port, disk, user, name, ext, true)
}

// SearchFirst implements BDOS 17: delegates to Open with wildcard-aware
// matching, then Close, returning Open's retcode — per spec.md §4.5 and
// the documented gap that Search Next (BDOS 18) is unimplemented.
// anyUser selects the FCB.Drv=='?' semantics (match any user, including
// deleted entries).
func (e *Engine) SearchFirst(port, disk int, user byte, name [8]byte, ext [3]byte, anyUser bool) (OpenResult, error) {
	d, err := e.diskAt(disk)
	if err != nil {
		return OpenResult{}, err
	}
	driveDir := e.driveDir(port, disk)
	pattern := combine(name, ext)

	res, err := locateExt(d, driveDir, user, pattern, 0, anyUser)
	if err != nil {
		return OpenResult{}, err
	}
	if res == nil {
		return OpenResult{RetCode: fileerr.RetMiscErr}, nil
	}

	// Open (to compute the directory code and exercise identical locate
	// logic) then immediately Close, matching alm_file_dosearch.
	open, err := e.Open(port, disk, res.DE.User, res.DE.Name, res.DE.Ext)
	if err != nil {
		return OpenResult{}, err
	}
	if open.RetCode == 0 && open.Err == 0 {
		_, _ = e.Close(port, disk, res.DE.User, res.DE.Name, res.DE.Ext, open.Handle)
	}
	return open, nil
}

func combine(name [8]byte, ext [3]byte) direntry.NameExt {
	var n direntry.NameExt
	copy(n[0:8], name[:])
	copy(n[8:11], ext[:])
	return n
}
