package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vax11/almmmost/internal/bam"
	"github.com/vax11/almmmost/internal/diskparam"
	"github.com/vax11/almmmost/internal/fileengine"
	"github.com/vax11/almmmost/internal/imagestore"
	"github.com/vax11/almmmost/internal/wire"
)

// fakeLink is an in-memory stand-in for the SDLC transport: CheckReady
// reports ready once per queued inbound frame, RecvFrame/SendFrame drain/
// fill simple byte-slice queues.
type fakeLink struct {
	inbound  [][]byte
	outbound [][]byte
	resetN   int
}

func (f *fakeLink) CheckReady(ctx context.Context) (bool, error) {
	return len(f.inbound) > 0, nil
}

func (f *fakeLink) RecvFrame(ctx context.Context, buf []byte) (int, error) {
	if len(f.inbound) == 0 {
		return 0, nil
	}
	n := copy(buf, f.inbound[0])
	f.inbound = f.inbound[1:]
	return n, nil
}

func (f *fakeLink) SendFrame(ctx context.Context, buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.outbound = append(f.outbound, cp)
	return nil
}

func (f *fakeLink) Reset(ctx context.Context) error {
	f.resetN++
	return nil
}

func newTestDisp(t *testing.T, numDisks int) (*Disp, *fakeLink) {
	t.Helper()
	params := &diskparam.Params{Kind: diskparam.Public, SPT: 26, BSF: 3, DBM: 242, DBL: 63, RES: 2, DirALx: 2}
	params.Derive()

	var disks []*imagestore.Disk
	for i := 0; i < numDisks; i++ {
		path := filepath.Join(t.TempDir(), "disk.img")
		img := make([]byte, (params.DataRecMax+1)*imagestore.RecordSize)
		for j := range img {
			img[j] = 0xE5 // freshly formatted: every directory entry free
		}
		if err := os.WriteFile(path, img, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		d := &imagestore.Disk{Params: params, BAM: bam.New(params.DBM)}
		if err := imagestore.OpenSlot(d, 0, path, false, false); err != nil {
			t.Fatalf("OpenSlot: %v", err)
		}
		t.Cleanup(func() { d.Slots[0].File.Close() })
		disks = append(disks, d)
	}

	engine := fileengine.NewEngine(disks, 1, 8)
	link := &fakeLink{}
	d := New([]Link{link}, engine, 0, 1)
	return d, link
}

func TestDoCheckSpoolDrv(t *testing.T) {
	d, _ := newTestDisp(t, 1)
	d.SpoolDrive = 3
	ret, errb := d.doCheck(0, CheckSpoolDrv, 0)
	if ret != 3 || errb != 0 {
		t.Errorf("doCheck(CheckSpoolDrv) = (%d, %d), want (3, 0)", ret, errb)
	}
}

func TestDoCheckGenrev(t *testing.T) {
	d, _ := newTestDisp(t, 1)
	d.GenRev = 7
	ret, errb := d.doCheck(0, CheckGenrev, 0)
	if ret != 7 || errb != 0 {
		t.Errorf("doCheck(CheckGenrev) = (%d, %d), want (7, 0)", ret, errb)
	}
}

func TestDoCheckAutoldProc(t *testing.T) {
	d, _ := newTestDisp(t, 1)
	d.Engine.Ports[0].AutoLogon = true
	ret, _ := d.doCheck(0, CheckAutoldProc, 0)
	if ret&0x40 == 0 {
		t.Errorf("doCheck(CheckAutoldProc) with AutoLogon=true = %#x, want bit 6 set", ret)
	}
	if ret&0xF != 0 {
		t.Errorf("doCheck(CheckAutoldProc) port bits = %#x, want 0 for port 0", ret&0xF)
	}
}

func TestDoCheckUnknownSubreq(t *testing.T) {
	d, _ := newTestDisp(t, 1)
	_, errb := d.doCheck(0, 'Z', 0)
	if errb != 0xFF {
		t.Errorf("doCheck(unknown) err = %d, want 0xFF", errb)
	}
}

func TestDoReadWriteSectRoundTrip(t *testing.T) {
	d, _ := newTestDisp(t, 1)
	dr := diskRequest{NDisk: 0, SectL: 1, SectH: 0, Trk16L: 2, Trk16H: 0}
	var data [128]byte
	for i := range data {
		data[i] = byte(i)
	}
	if ret, errb := d.doWriteSect(0, dr, data); ret != 0 || errb != 0 {
		t.Fatalf("doWriteSect = (%d, %d), want (0, 0)", ret, errb)
	}
	ret, errb, got := d.doReadSect(0, dr)
	if ret != 0 || errb != 0 {
		t.Fatalf("doReadSect = (%d, %d), want (0, 0)", ret, errb)
	}
	if got != data {
		t.Error("doReadSect did not return the bytes doWriteSect wrote")
	}
}

func TestDoReadSectUnknownDisk(t *testing.T) {
	d, _ := newTestDisp(t, 1)
	dr := diskRequest{NDisk: 9}
	_, errb, _ := d.doReadSect(0, dr)
	if errb != 1 {
		t.Errorf("doReadSect(unknown disk) err = %d, want 1", errb)
	}
}

func TestDoLogonRejectsNonPrivateDisk(t *testing.T) {
	d, _ := newTestDisp(t, 1) // disk 0 is PUBLIC in newTestDisp
	var passwd [128]byte
	copy(passwd[:], "DIR0    ")
	if ret := d.doLogon(0, 0, passwd); ret != 1 {
		t.Errorf("doLogon on a PUBLIC disk = %d, want 1 (rejected)", ret)
	}
}

func TestDoLogonAcceptsValidPrivateDirToken(t *testing.T) {
	params := &diskparam.Params{Kind: diskparam.Private, SPT: 26, BSF: 3, DBM: 242, DBL: 63, RES: 2, DirALx: 2}
	params.Derive()
	path0 := filepath.Join(t.TempDir(), "priv0.img")
	path1 := filepath.Join(t.TempDir(), "priv1.img")
	if err := os.WriteFile(path0, make([]byte, (params.DataRecMax+1)*imagestore.RecordSize), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(path1, make([]byte, (params.DataRecMax+1)*imagestore.RecordSize), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	disk := &imagestore.Disk{Params: params}
	if err := imagestore.OpenSlot(disk, 0, path0, false, false); err != nil {
		t.Fatalf("OpenSlot(0): %v", err)
	}
	if err := imagestore.OpenSlot(disk, 1, path1, false, false); err != nil {
		t.Fatalf("OpenSlot(1): %v", err)
	}

	engine := fileengine.NewEngine([]*imagestore.Disk{disk}, 2, 8)
	d := New([]Link{&fakeLink{}, &fakeLink{}}, engine, 0, 1)

	var passwd [128]byte
	copy(passwd[:], "DIR1    ")
	if ret := d.doLogon(0, 0, passwd); ret != 0 {
		t.Fatalf("doLogon(DIR1) = %d, want 0 (accepted)", ret)
	}
	if engine.Ports[0].DriveDir[0] != 1 {
		t.Errorf("Ports[0].DriveDir[0] = %d, want 1 after logon", engine.Ports[0].DriveDir[0])
	}
}

func TestDoLogonRejectsMalformedToken(t *testing.T) {
	params := &diskparam.Params{Kind: diskparam.Private, SPT: 26, BSF: 3, DBM: 242, DBL: 63, RES: 2, DirALx: 2}
	params.Derive()
	path0 := filepath.Join(t.TempDir(), "priv0.img")
	if err := os.WriteFile(path0, make([]byte, (params.DataRecMax+1)*imagestore.RecordSize), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	disk := &imagestore.Disk{Params: params}
	if err := imagestore.OpenSlot(disk, 0, path0, false, false); err != nil {
		t.Fatalf("OpenSlot: %v", err)
	}

	engine := fileengine.NewEngine([]*imagestore.Disk{disk}, 1, 8)
	d := New([]Link{&fakeLink{}}, engine, 0, 1)

	var passwd [128]byte
	copy(passwd[:], "NOTADIR ")
	if ret := d.doLogon(0, 0, passwd); ret != 1 {
		t.Errorf("doLogon with a malformed token = %d, want 1 (rejected)", ret)
	}
}

func TestAbortAndLocateAreOneShot(t *testing.T) {
	d, _ := newTestDisp(t, 1)
	d.Abort()
	if !d.abort.CompareAndSwap(true, false) {
		t.Error("Abort() should set the abort flag so the first CompareAndSwap observes true")
	}
	if d.abort.Load() {
		t.Error("abort flag should have been consumed by the CompareAndSwap")
	}

	d.Locate()
	if !d.locate.CompareAndSwap(true, false) {
		t.Error("Locate() should set the locate flag")
	}
}

func TestRouteFileOpMakeEndToEnd(t *testing.T) {
	d, link := newTestDisp(t, 1)

	var fcb wire.FCB
	copy(fcb.Name[:], "MAKETEST")
	copy(fcb.Ext[:], "TXT")
	link.inbound = append(link.inbound, fcb.Encode())

	reqBytes := []byte{1, wire.OpFile, 0 /* logdrv */, fileengine.BDOSMake, 0 /* usercode */, 0, 0, 0 /* curbdisk */, 0, 0}
	req, err := wire.DecodeRequest(reqBytes)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}

	d.route(context.Background(), 0, req)

	if len(link.outbound) != 2 {
		t.Fatalf("outbound frames = %d, want 2 (response + FCB echo)", len(link.outbound))
	}
	resp := link.outbound[0]
	if len(resp) != 4 {
		t.Fatalf("response frame length = %d, want 4", len(resp))
	}
	if resp[2] != 0 {
		t.Errorf("Make response retcode = %d, want 0 (success)", resp[2])
	}
	if len(link.outbound[1]) != wire.FCBSize {
		t.Fatalf("FCB echo length = %d, want %d", len(link.outbound[1]), wire.FCBSize)
	}
}

func TestRouteUnknownRequestResetsLink(t *testing.T) {
	d, link := newTestDisp(t, 1)
	req, _ := wire.DecodeRequest([]byte{1, 'Z', 0, 0, 0, 0, 0, 0, 0, 0})
	d.route(context.Background(), 0, req)
	if link.resetN != 1 {
		t.Errorf("route(unknown op) resetN = %d, want 1", link.resetN)
	}
}
