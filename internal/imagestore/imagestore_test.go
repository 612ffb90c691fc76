package imagestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vax11/almmmost/internal/diskparam"
	"github.com/vax11/almmmost/internal/fileerr"
)

func testParams(kind diskparam.Kind) *diskparam.Params {
	p := &diskparam.Params{Kind: kind, SPT: 26, BSF: 3, DBM: 242, DBL: 63, RES: 2, DirALx: 2}
	p.Derive()
	return p
}

func newImageFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpenSlotAndReadWriteRoundTrip(t *testing.T) {
	params := testParams(diskparam.Public)
	path := newImageFile(t, (params.DataRecMax+1)*RecordSize)
	d := &Disk{Params: params}
	if err := OpenSlot(d, 0, path, false, false); err != nil {
		t.Fatalf("OpenSlot: %v", err)
	}
	defer d.Slots[0].File.Close()

	data := make([]byte, RecordSize)
	for i := range data {
		data[i] = byte(i)
	}
	if err := WriteRec(d, 0, 5, data); err != nil {
		t.Fatalf("WriteRec: %v", err)
	}
	got, err := ReadRec(d, 0, 5)
	if err != nil {
		t.Fatalf("ReadRec: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("ReadRec returned different bytes than WriteRec wrote")
	}
}

func TestWriteRecReadOnlyRejected(t *testing.T) {
	params := testParams(diskparam.Public)
	path := newImageFile(t, (params.DataRecMax+1)*RecordSize)
	d := &Disk{Params: params}
	if err := OpenSlot(d, 0, path, true, false); err != nil {
		t.Fatalf("OpenSlot: %v", err)
	}
	defer d.Slots[0].File.Close()

	data := make([]byte, RecordSize)
	if err := WriteRec(d, 0, 0, data); err != fileerr.ErrWriteProt {
		t.Errorf("WriteRec on a read-only slot = %v, want ErrWriteProt", err)
	}
}

func TestResolveSlotSelectsPrivateDirByDriveDir(t *testing.T) {
	params := testParams(diskparam.Private)
	path0 := newImageFile(t, (params.DataRecMax+1)*RecordSize)
	path1 := newImageFile(t, (params.DataRecMax+1)*RecordSize)
	d := &Disk{Params: params}
	if err := OpenSlot(d, 0, path0, false, false); err != nil {
		t.Fatalf("OpenSlot(0): %v", err)
	}
	if err := OpenSlot(d, 1, path1, false, false); err != nil {
		t.Fatalf("OpenSlot(1): %v", err)
	}
	defer d.Slots[0].File.Close()
	defer d.Slots[1].File.Close()

	data0 := []byte("slot0-marker-data-------------------------------------------------------------------------------------------------")
	data0 = data0[:RecordSize]
	data1 := []byte("slot1-marker-data-------------------------------------------------------------------------------------------------")
	data1 = data1[:RecordSize]

	if err := WriteRec(d, 0, 0, data0); err != nil {
		t.Fatalf("WriteRec driveDir=0: %v", err)
	}
	if err := WriteRec(d, 1, 0, data1); err != nil {
		t.Fatalf("WriteRec driveDir=1: %v", err)
	}

	got0, err := ReadRec(d, 0, 0)
	if err != nil {
		t.Fatalf("ReadRec driveDir=0: %v", err)
	}
	if string(got0) != string(data0) {
		t.Error("driveDir=0 should read back slot 0's data")
	}
	got1, err := ReadRec(d, 1, 0)
	if err != nil {
		t.Fatalf("ReadRec driveDir=1: %v", err)
	}
	if string(got1) != string(data1) {
		t.Error("driveDir=1 should read back slot 1's data, not slot 0's")
	}
}

func TestResolveSlotOutOfRange(t *testing.T) {
	params := testParams(diskparam.Private)
	d := &Disk{Params: params}
	if _, err := ReadRec(d, 5, 0); err != fileerr.ErrBadSelect {
		t.Errorf("ReadRec with an out-of-range driveDir = %v, want ErrBadSelect", err)
	}
}

func TestReopenRejectedOnPublicDisk(t *testing.T) {
	params := testParams(diskparam.Public)
	path := newImageFile(t, (params.DataRecMax+1)*RecordSize)
	d := &Disk{Params: params}
	if err := OpenSlot(d, 0, path, false, false); err != nil {
		t.Fatalf("OpenSlot: %v", err)
	}
	defer d.Slots[0].File.Close()

	if err := Reopen(d, 0, path, false, nil); err != fileerr.ErrDrvType {
		t.Errorf("Reopen on a PUBLIC disk = %v, want ErrDrvType", err)
	}
}

func TestReopenSwapsPrivateImage(t *testing.T) {
	params := testParams(diskparam.Private)
	path := newImageFile(t, (params.DataRecMax+1)*RecordSize)
	newPath := newImageFile(t, (params.DataRecMax+1)*RecordSize)
	d := &Disk{Params: params}
	if err := OpenSlot(d, 0, path, false, false); err != nil {
		t.Fatalf("OpenSlot: %v", err)
	}

	closed := false
	if err := Reopen(d, 0, newPath, true, func() { closed = true }); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer d.Slots[0].File.Close()

	if !closed {
		t.Error("Reopen should invoke onClose before swapping the image")
	}
	if d.Slots[0].Path != newPath || !d.Slots[0].RO {
		t.Errorf("Reopen did not swap in the new path/RO flag: %+v", d.Slots[0])
	}
}
