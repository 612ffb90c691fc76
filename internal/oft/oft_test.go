package oft

import (
	"testing"

	"github.com/vax11/almmmost/internal/direntry"
)

func nameExt(name, ext string) direntry.NameExt {
	var n direntry.NameExt
	copy(n[0:8], name)
	copy(n[8:11], ext)
	return n
}

func entryFor(port, disk int, user byte, name, ext string) *Entry {
	e := &Entry{Disk: disk, User: user, Port: port}
	copy(e.Name[:], name)
	copy(e.Ext[:], ext)
	return e
}

func TestAllocAssignsLowestFreeHandle(t *testing.T) {
	tbl := NewTable(3)
	h1 := tbl.Alloc(entryFor(0, 0, 0, "FOO     ", "TXT"))
	h2 := tbl.Alloc(entryFor(0, 0, 0, "BAR     ", "TXT"))
	if h1 != 1 || h2 != 2 {
		t.Fatalf("Alloc handles = %d, %d, want 1, 2", h1, h2)
	}
	tbl.Free(h1)
	h3 := tbl.Alloc(entryFor(0, 0, 0, "BAZ     ", "TXT"))
	if h3 != 1 {
		t.Errorf("Alloc after Free(1) = %d, want 1 (reuse lowest free)", h3)
	}
}

func TestAllocTableFull(t *testing.T) {
	tbl := NewTable(1)
	if h := tbl.Alloc(entryFor(0, 0, 0, "A       ", "   ")); h != 1 {
		t.Fatalf("first Alloc = %d, want 1", h)
	}
	if h := tbl.Alloc(entryFor(0, 0, 0, "B       ", "   ")); h != 0 {
		t.Errorf("Alloc on a full table = %d, want 0", h)
	}
}

func TestGetOutOfRange(t *testing.T) {
	tbl := NewTable(2)
	if e := tbl.Get(0); e != nil {
		t.Error("Get(0) (reserved handle) should return nil")
	}
	if e := tbl.Get(99); e != nil {
		t.Error("Get(99) (out of range) should return nil")
	}
}

func TestResolveHandleHintHit(t *testing.T) {
	tbl := NewTable(2)
	e := entryFor(3, 1, 5, "FOO     ", "TXT")
	h := tbl.Alloc(e)
	got := tbl.ResolveHandle(h, 3, 1, 5, nameExt("FOO     ", "TXT"))
	if got != h {
		t.Errorf("ResolveHandle with a matching hint = %d, want %d", got, h)
	}
}

func TestResolveHandleFallsBackToScan(t *testing.T) {
	tbl := NewTable(2)
	e := entryFor(3, 1, 5, "FOO     ", "TXT")
	h := tbl.Alloc(e)
	// Wrong hint (stale handle) but the (port,disk,user,name) tuple is still open.
	got := tbl.ResolveHandle(99, 3, 1, 5, nameExt("FOO     ", "TXT"))
	if got != h {
		t.Errorf("ResolveHandle with a stale hint = %d, want fallback scan to find %d", got, h)
	}
}

func TestResolveHandleNoMatch(t *testing.T) {
	tbl := NewTable(2)
	tbl.Alloc(entryFor(3, 1, 5, "FOO     ", "TXT"))
	got := tbl.ResolveHandle(0, 3, 1, 5, nameExt("OTHER   ", "TXT"))
	if got != 0 {
		t.Errorf("ResolveHandle with no match = %d, want 0", got)
	}
}

func TestFindOpenByNameIgnoresPort(t *testing.T) {
	tbl := NewTable(2)
	tbl.Alloc(entryFor(7, 2, 1, "SHARED  ", "DAT"))
	if !tbl.FindOpenByName(2, 1, nameExt("SHARED  ", "DAT")) {
		t.Error("FindOpenByName should find the entry regardless of which port opened it")
	}
	if tbl.FindOpenByName(2, 1, nameExt("NOTOPEN ", "DAT")) {
		t.Error("FindOpenByName should not find a non-open name")
	}
}

func TestClearPortFlushesAndFrees(t *testing.T) {
	tbl := NewTable(3)
	h1 := tbl.Alloc(entryFor(1, 0, 0, "A       ", "   "))
	h2 := tbl.Alloc(entryFor(2, 0, 0, "B       ", "   "))

	var flushed []int
	tbl.ClearPort(1, func(e *Entry) { flushed = append(flushed, e.Port) })

	if len(flushed) != 1 || flushed[0] != 1 {
		t.Errorf("flushed = %v, want [1]", flushed)
	}
	if tbl.Get(h1) != nil {
		t.Error("entry on cleared port should be freed")
	}
	if tbl.Get(h2) == nil {
		t.Error("entry on a different port should survive ClearPort")
	}
}

func TestAll(t *testing.T) {
	tbl := NewTable(3)
	h1 := tbl.Alloc(entryFor(0, 0, 0, "A       ", "   "))
	h2 := tbl.Alloc(entryFor(0, 0, 0, "B       ", "   "))
	all := tbl.All()
	if len(all) != 2 {
		t.Fatalf("All() len = %d, want 2", len(all))
	}
	if _, ok := all[h1]; !ok {
		t.Errorf("All() missing handle %d", h1)
	}
	if _, ok := all[h2]; !ok {
		t.Errorf("All() missing handle %d", h2)
	}
}
