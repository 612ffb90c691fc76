// Package oft implements the process-wide open-file table: handle
// allocation, extent-list-bearing entries, and the hint-then-scan handle
// reconciliation used to tolerate clients that leak stale FCB handles.
package oft

import "github.com/vax11/almmmost/internal/direntry"

// NoHint is the reserved handle value meaning "no hint provided".
const NoHint = 0

// ExtentRec is one physical extent's in-memory bookkeeping: the directory
// entry that backs it, its 16 block numbers, and how many records of data
// it currently holds.
type ExtentRec struct {
	DEIndex        int
	Blocks         [16]uint16
	ExtSizeRecords int
}

// Entry is one open-file table slot.
type Entry struct {
	InUse       bool
	Disk        int
	User        byte
	Port        int
	Name        [8]byte
	Ext         [3]byte
	RO          bool
	SizeRecords int
	Extents     []ExtentRec
	Trap        interface{} // special.Trap when this is a special file; nil for regular files
}

// Combined returns the entry's name+ext as an 11-byte match pattern.
func (e *Entry) Combined() direntry.NameExt {
	var n direntry.NameExt
	copy(n[0:8], e.Name[:])
	copy(n[8:11], e.Ext[:])
	return n
}

// Table is the handle -> Entry map. Handle 0 is reserved; valid handles
// start at 1.
type Table struct {
	entries []*Entry // index 0 unused
}

// NewTable creates a table sized for maxFiles simultaneously open files
// (handles 1..maxFiles).
func NewTable(maxFiles int) *Table {
	return &Table{entries: make([]*Entry, maxFiles+1)}
}

// Alloc finds the lowest free handle >= 1, stores entry there, and returns
// the handle. Returns 0 if the table is full.
func (t *Table) Alloc(entry *Entry) int {
	for h := 1; h < len(t.entries); h++ {
		if t.entries[h] == nil {
			entry.InUse = true
			t.entries[h] = entry
			return h
		}
	}
	return 0
}

// Get returns the entry at handle, or nil if unused or out of range.
func (t *Table) Get(handle int) *Entry {
	if handle <= 0 || handle >= len(t.entries) {
		return nil
	}
	return t.entries[handle]
}

// Free clears handle's slot.
func (t *Table) Free(handle int) {
	if handle <= 0 || handle >= len(t.entries) {
		return
	}
	t.entries[handle] = nil
}

// ResolveHandle implements resolve_handle: if hint names a live entry
// matching (port, disk, user, name), return it unchanged; otherwise fall
// back to a linear scan for any entry matching those four fields. Returns
// 0 if no match exists either way. This reconciles clients (like PIP) that
// leak FCB handle references across operations.
func (t *Table) ResolveHandle(hint, port, disk int, user byte, name direntry.NameExt) int {
	if e := t.Get(hint); e != nil && e.InUse && e.Port == port && e.Disk == disk && e.User == user && e.Combined() == name {
		return hint
	}
	for h := 1; h < len(t.entries); h++ {
		e := t.entries[h]
		if e == nil || !e.InUse {
			continue
		}
		if e.Port == port && e.Disk == disk && e.User == user && e.Combined() == name {
			return h
		}
	}
	return 0
}

// FindOpenByName reports whether any entry on disk/user matching name is
// currently open, regardless of owning port — used by Delete/Rename/SetAttr
// to reject modification of open files.
func (t *Table) FindOpenByName(disk int, user byte, name direntry.NameExt) bool {
	for h := 1; h < len(t.entries); h++ {
		e := t.entries[h]
		if e == nil || !e.InUse {
			continue
		}
		if e.Disk == disk && e.User == user && e.Combined() == name {
			return true
		}
	}
	return false
}

// ClearPort frees every entry owned by port, invoking flush(entry) first
// for each so the caller can write back dirty extents. Used for port-wide
// clear (client disconnect) and graceful shutdown.
func (t *Table) ClearPort(port int, flush func(*Entry)) {
	for h := 1; h < len(t.entries); h++ {
		e := t.entries[h]
		if e == nil || !e.InUse || e.Port != port {
			continue
		}
		if flush != nil {
			flush(e)
		}
		t.entries[h] = nil
	}
}

// All returns every currently open entry with its handle, for the
// "printfil" console command.
func (t *Table) All() map[int]*Entry {
	out := make(map[int]*Entry)
	for h := 1; h < len(t.entries); h++ {
		if t.entries[h] != nil {
			out[h] = t.entries[h]
		}
	}
	return out
}
