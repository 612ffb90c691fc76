package dispatcher

import (
	"github.com/vax11/almmmost/internal/fileerr"
	"github.com/vax11/almmmost/internal/imagestore"
)

// diskRequest is the named view of a (sor=1, op='R'/'W') raw sector
// request, per spec.md §6.1: byte2=ndisk, byte3=trk8/subreq, rest carries
// sect/track halves and write type.
type diskRequest struct {
	NDisk   byte
	SectH   byte
	SectL   byte
	Trk16H  byte
	Trk16L  byte
	WrType  byte
}

func decodeDiskRequest(b2, b3 byte, rest [6]byte) diskRequest {
	return diskRequest{
		NDisk:  b2,
		SectL:  rest[0],
		SectH:  rest[1],
		Trk16L: rest[2],
		Trk16H: rest[3],
		WrType: rest[4],
	}
}

func (r diskRequest) sector() int  { return int(r.SectH)<<8 | int(r.SectL) }
func (r diskRequest) track() int   { return int(r.Trk16H)<<8 | int(r.Trk16L) }

// doReadSect implements the raw record read op (1,'R'): one 128-byte record
// at track*SPT+sect, per spec.md §6.1's Disk read framing and
// original_source/almmmost/almmmost_image.c's alm_do_read. The image store
// numbers records from the directory, so records on the reserved tracks
// fail with BadSelect.
func (d *Disp) doReadSect(port int, dr diskRequest) (ret, errb byte, data [128]byte) {
	disk := int(dr.NDisk)
	if disk < 0 || disk >= len(d.Engine.Disks) || d.Engine.Disks[disk] == nil {
		return 0, 1, data
	}
	disknum := d.Engine.Disks[disk]
	if dr.sector() > disknum.Params.SPT || dr.track() > disknum.Params.Tracks {
		return 0, 1, data
	}
	rec := dr.track()*disknum.Params.SPT + dr.sector() - disknum.Params.DirRecMin
	raw, err := imagestore.ReadRec(disknum, d.driveDir(port, disk), rec)
	if err != nil {
		_, eb := fileerr.ToWire(err)
		return 0, eb, data
	}
	copy(data[:], raw)
	return 0, 0, data
}

// doWriteSect implements the raw record write op (1,'W'), per
// almmmost_image.c's alm_do_write.
func (d *Disp) doWriteSect(port int, dr diskRequest, data [128]byte) (ret, errb byte) {
	disk := int(dr.NDisk)
	if disk < 0 || disk >= len(d.Engine.Disks) || d.Engine.Disks[disk] == nil {
		return 0, 1
	}
	disknum := d.Engine.Disks[disk]
	if dr.sector() > disknum.Params.SPT || dr.track() > disknum.Params.Tracks {
		return 0, 1
	}
	rec := dr.track()*disknum.Params.SPT + dr.sector() - disknum.Params.DirRecMin
	if err := imagestore.WriteRec(disknum, d.driveDir(port, disk), rec, data[:]); err != nil {
		_, eb := fileerr.ToWire(err)
		return 0, eb
	}
	return 0, 0
}

func (d *Disp) driveDir(port, disk int) int {
	if port < 0 || port >= len(d.Engine.Ports) {
		return 0
	}
	if disk < 0 || disk >= len(d.Engine.Ports[port].DriveDir) {
		return 0
	}
	return d.Engine.Ports[port].DriveDir[disk]
}
