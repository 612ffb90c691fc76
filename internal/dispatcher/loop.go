package dispatcher

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vax11/almmmost/internal/fileengine"
	"github.com/vax11/almmmost/internal/wire"
)

// pollDelay works around spurious CTS assertions immediately after a
// request completes, per spec.md §4.6's "empirical ≈45µs" note.
const pollDelay = 45 * time.Microsecond

// interWriteDelay is inserted between successive outbound frames of a
// single response, per spec.md §4.6.
const interWriteDelay = 100 * time.Microsecond

// Disp is the request dispatcher: one Link per port, the file engine they
// all share, and the abort/locate console flags inspected inside every
// busy-wait, per spec.md §5.
type Disp struct {
	Links  []Link
	Engine *fileengine.Engine

	SpoolDrive int
	GenRev     int

	abort  atomic.Bool
	locate atomic.Bool

	mu       sync.Mutex
	lastPort int
}

// New constructs a dispatcher over links and an already-configured engine.
func New(links []Link, engine *fileengine.Engine, spoolDrive, genRev int) *Disp {
	return &Disp{Links: links, Engine: engine, SpoolDrive: spoolDrive, GenRev: genRev, lastPort: -1}
}

// Abort requests the dispatcher's current or next busy-wait to fail with a
// BIOS-write error, invoked from the control console.
func (d *Disp) Abort() { d.abort.Store(true) }

// Locate requests a diagnostic dump of the current busy-wait site.
func (d *Disp) Locate() { d.locate.Store(true) }

// waitReady busy-waits on link, observing abort/locate each iteration, per
// spec.md §5's cancellation model. Returns false if abort fired.
func (d *Disp) waitReady(ctx context.Context, link Link, site string) (bool, error) {
	for {
		ready, err := link.CheckReady(ctx)
		if err != nil {
			return false, err
		}
		if ready {
			return true, nil
		}
		if d.locate.CompareAndSwap(true, false) {
			log.Printf("locate: %s", site)
		}
		if d.abort.CompareAndSwap(true, false) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}
	}
}

// Run executes the round-robin poll loop until ctx is canceled, per
// spec.md §4.6/§5 and original_source/almmmost/almmmost.c's main().
func (d *Disp) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		time.Sleep(pollDelay)

		port := -1
		for i := 0; i < len(d.Links); i++ {
			j := (i + d.lastPort + 1) % len(d.Links)
			ready, err := d.Links[j].CheckReady(ctx)
			if err != nil {
				log.Printf("port %d: check ready: %v", j, err)
				continue
			}
			if ready {
				port = j
				break
			}
			if d.locate.CompareAndSwap(true, false) {
				log.Print("locate/abort: main poll loop")
			}
			d.abort.CompareAndSwap(true, false)
		}
		if port < 0 {
			continue
		}
		d.lastPort = port

		var reqbuf [wire.RequestSize]byte
		n, err := d.Links[port].RecvFrame(ctx, reqbuf[:])
		if err != nil || n < wire.RequestSize {
			log.Printf("port %d: request too small: %d bytes (%v)", port, n, err)
			_ = d.Links[port].Reset(ctx)
			continue
		}

		req, err := wire.DecodeRequest(reqbuf[:])
		if err != nil {
			_ = d.Links[port].Reset(ctx)
			continue
		}

		d.route(ctx, port, req)
	}
}

func (d *Disp) route(ctx context.Context, port int, req wire.Request) {
	switch {
	case req.SOR == 1 && req.Op == wire.OpBoot:
		d.doBoot(ctx, port, req)
	case req.SOR == 1 && req.Op == wire.OpBreakSpool:
		// No-op: spool breaking has no analog without the printer-spool
		// subsystem, matching the original's unimplemented stub.
	case req.SOR == 1 && req.Op == wire.OpCheck:
		d.handleCheck(ctx, port, req)
	case req.SOR == 1 && req.Op == wire.OpReadSect:
		d.handleReadSect(ctx, port, req)
	case req.SOR == 1 && req.Op == wire.OpWriteSect:
		d.handleWriteSect(ctx, port, req)
	case req.SOR == 1 && req.Op == wire.OpFile:
		d.handleFileOp(ctx, port, req)
	case req.SOR == 0 && (req.Op == 'C' || req.Op == 'L'):
		d.handleLogon(ctx, port, req)
	default:
		log.Printf("port %d: unknown request sor=%d op=%c", port, req.SOR, req.Op)
		_ = d.Links[port].Reset(ctx)
	}
}

// doBoot is an interface stub: the boot-loader/OS-image send stream is an
// explicit non-goal of this implementation.
func (d *Disp) doBoot(ctx context.Context, port int, req wire.Request) {
	d.Engine.ClosePort(port)
	log.Printf("port %d: boot request (unimplemented; OS-load stream is out of scope)", port)
	_ = d.Links[port].Reset(ctx)
}

func (d *Disp) handleCheck(ctx context.Context, port int, req wire.Request) {
	subreq := req.Byte3
	drv := req.Byte2
	var data [128]byte
	if subreq != CheckHijack {
		ready, err := d.waitReady(ctx, d.Links[port], "check data")
		if err != nil || !ready {
			d.writeCheckResp(ctx, port, 0, fileerrAbortCode())
			return
		}
		_, _ = d.Links[port].RecvFrame(ctx, data[:])
	}
	ret, errb := d.doCheck(port, subreq, drv)
	d.writeCheckResp(ctx, port, ret, errb)
}

func (d *Disp) writeCheckResp(ctx context.Context, port int, ret, errb byte) {
	resp := wire.DiskResponse{RetCode: ret, Err: errb}
	time.Sleep(interWriteDelay)
	_ = d.Links[port].SendFrame(ctx, resp.Encode())
}

func (d *Disp) handleReadSect(ctx context.Context, port int, req wire.Request) {
	dr := decodeDiskRequest(req.Byte2, req.Byte3, req.Rest)
	ret, errb, data := d.doReadSect(port, dr)
	resp := wire.DiskResponse{RetCode: ret, Err: errb}
	time.Sleep(interWriteDelay)
	_ = d.Links[port].SendFrame(ctx, resp.Encode())
	if errb == 0 {
		time.Sleep(interWriteDelay)
		_ = d.Links[port].SendFrame(ctx, data[:])
	}
}

func (d *Disp) handleWriteSect(ctx context.Context, port int, req wire.Request) {
	dr := decodeDiskRequest(req.Byte2, req.Byte3, req.Rest)
	var data [128]byte
	ready, err := d.waitReady(ctx, d.Links[port], "write sect data")
	if err != nil || !ready {
		d.writeCheckResp(ctx, port, 0, fileerrAbortCode())
		return
	}
	_, _ = d.Links[port].RecvFrame(ctx, data[:])
	ret, errb := d.doWriteSect(port, dr, data)
	d.writeCheckResp(ctx, port, ret, errb)
}

func (d *Disp) handleLogon(ctx context.Context, port int, req wire.Request) {
	drive := int(req.Byte2)
	var passwd [128]byte
	ready, err := d.waitReady(ctx, d.Links[port], "logon password block")
	if err != nil || !ready {
		d.writeCheckResp(ctx, port, 1, fileerrAbortCode())
		return
	}
	_, _ = d.Links[port].RecvFrame(ctx, passwd[:])
	ret := d.doLogon(port, drive, passwd)
	d.writeCheckResp(ctx, port, ret, 0)
}

func (d *Disp) handleFileOp(ctx context.Context, port int, req wire.Request) {
	fr := req.AsFileRequest()

	var fcbBuf [wire.FCBSize]byte
	ready, err := d.waitReady(ctx, d.Links[port], "file op FCB")
	if err != nil {
		return
	}
	if !ready {
		d.writeFileOpAbort(ctx, port)
		return
	}
	_, _ = d.Links[port].RecvFrame(ctx, fcbBuf[:])
	fcb, err := wire.DecodeFCB(fcbBuf[:])
	if err != nil {
		_ = d.Links[port].Reset(ctx)
		return
	}

	var data [wire.DataRecordSize]byte
	isWrite := fr.BDOSFunc == fileengine.BDOSWriteSeq || fr.BDOSFunc == fileengine.BDOSWriteRand || fr.BDOSFunc == fileengine.BDOSWriteRandZero
	if isWrite {
		ready, err := d.waitReady(ctx, d.Links[port], "file op write data")
		if err != nil {
			return
		}
		if !ready {
			d.writeFileOpAbort(ctx, port)
			return
		}
		_, _ = d.Links[port].RecvFrame(ctx, data[:])
	}

	disk := int(fr.CurBDisk)
	if fcb.Drv != 0 {
		disk = int(fcb.Drv) - 1
	}

	resp, outFCB, outData := d.Engine.Dispatch(port, disk, fr, fcb, data)

	time.Sleep(interWriteDelay)
	_ = d.Links[port].SendFrame(ctx, resp.Encode())
	time.Sleep(interWriteDelay)
	_ = d.Links[port].SendFrame(ctx, outFCB.Encode())

	isRead := fr.BDOSFunc == fileengine.BDOSReadSeq || fr.BDOSFunc == fileengine.BDOSReadRand
	if isRead && resp.RetCode == 0 {
		time.Sleep(interWriteDelay)
		_ = d.Links[port].SendFrame(ctx, outData[:])
	}
}

func (d *Disp) writeFileOpAbort(ctx context.Context, port int) {
	resp := wire.FileResponse{FileNo: 0xFFFF, RetCode: 0xFF, Err: fileerrAbortCode()}
	time.Sleep(interWriteDelay)
	_ = d.Links[port].SendFrame(ctx, resp.Encode())
}

// fileerrAbortCode is the wire error byte written when a busy-wait is cut
// short by an operator abort, matching the original's ERR_BIOS_WRITE.
func fileerrAbortCode() byte { return 6 }
