package fileengine

import (
	"github.com/vax11/almmmost/internal/fileerr"
	"github.com/vax11/almmmost/internal/wire"
)

// Dispatch executes one file-op request against fcb (and data, for the
// write operations that carry a 128-byte record), returning the response
// frame, the FCB as it should be echoed back to the client, and any data
// record to return (for the read operations). This is the single entry
// point the dispatcher's file-op sub-protocol calls into, per spec.md §4.6.
func (e *Engine) Dispatch(port, disk int, fr wire.FileRequest, fcb wire.FCB, data [wire.DataRecordSize]byte) (wire.FileResponse, wire.FCB, [wire.DataRecordSize]byte) {
	var outData [wire.DataRecordSize]byte
	user := fr.UserCode
	hint := fr.FileNo()

	pos := Position{S2: fcb.S2, CurExt: fcb.CurExt, CurRec: fcb.CurRec, RRec: fcb.RRec}

	resp := func(handle uint16, err error) wire.FileResponse {
		ret, eb := fileerr.ToWire(err)
		return wire.FileResponse{FileNo: handle, RetCode: ret, Err: eb}
	}

	switch fr.BDOSFunc {
	case BDOSOpen, BDOSMake:
		var or OpenResult
		var err error
		if fr.BDOSFunc == BDOSOpen {
			or, err = e.Open(port, disk, user, fcb.Name, fcb.Ext)
		} else {
			or, err = e.Make(port, disk, user, fcb.Name, fcb.Ext)
		}
		if err != nil {
			return resp(0xFFFF, err), fcb, outData
		}
		r := wire.FileResponse{FileNo: or.Handle, RetCode: or.RetCode, Err: or.Err}
		return r, fcb, outData

	case BDOSSearchFirst:
		anyUser := fcb.Drv == '?'
		or, err := e.SearchFirst(port, disk, user, fcb.Name, fcb.Ext, anyUser)
		if err != nil {
			return resp(0xFFFF, err), fcb, outData
		}
		r := wire.FileResponse{FileNo: or.Handle, RetCode: or.RetCode, Err: or.Err}
		return r, fcb, outData

	case BDOSSearchNext:
		return resp(0xFFFF, fileerr.ErrIllCall), fcb, outData

	case BDOSClose:
		h, err := e.Close(port, disk, user, fcb.Name, fcb.Ext, hint)
		return resp(h, err), fcb, outData

	case BDOSDelete:
		err := e.Delete(port, disk, user, fcb.Name, fcb.Ext)
		return resp(0xFFFF, err), fcb, outData

	case BDOSRename:
		destName, destExt := fcb.RenameDest()
		err := e.Rename(port, disk, user, fcb.Name, fcb.Ext, destName, destExt)
		return resp(0xFFFF, err), fcb, outData

	case BDOSSetAttr:
		err := e.SetAttr(port, disk, user, fcb.Name, fcb.Ext)
		return resp(0xFFFF, err), fcb, outData

	case BDOSReadSeq, BDOSReadRand:
		var res RWResult
		var newPos Position
		var err error
		if fr.BDOSFunc == BDOSReadSeq {
			res, newPos, err = e.ReadSeq(port, disk, hint, pos)
		} else {
			res, newPos, err = e.ReadRand(port, disk, hint, pos)
		}
		fcb.S2, fcb.CurExt, fcb.CurRec, fcb.RRec = newPos.S2, newPos.CurExt, newPos.CurRec, newPos.RRec
		fcb.Al = res.Al
		if res.SizeRecords > 0 {
			fcb.RecCnt = byte(res.SizeRecords & 0x7F)
		}
		outData = res.Data
		return resp(hint, err), fcb, outData

	case BDOSWriteSeq, BDOSWriteRand, BDOSWriteRandZero:
		var mode WriteMode
		switch fr.BDOSFunc {
		case BDOSWriteSeq:
			mode = WriteModeSeq
		case BDOSWriteRand:
			mode = WriteModeRand
		default:
			mode = WriteModeRandZero
		}
		res, newPos, err := e.WriteAt(port, disk, hint, pos, mode, data)
		fcb.S2, fcb.CurExt, fcb.CurRec, fcb.RRec = newPos.S2, newPos.CurExt, newPos.CurRec, newPos.RRec
		if err == nil {
			fcb.Al = res.Al
			if res.SizeRecords > 0 {
				fcb.RecCnt = byte(res.SizeRecords & 0x7F)
			}
		}
		return resp(hint, err), fcb, outData

	case BDOSGetSize:
		rrec, al, err := e.GetSize(disk, hint)
		fcb.RRec = rrec
		fcb.Al = al
		return resp(hint, err), fcb, outData

	case BDOSSetRandomRecord:
		rrec, err := e.SetRandomRecord(disk, hint, pos)
		fcb.RRec = rrec
		return resp(hint, err), fcb, outData

	default:
		return resp(0xFFFF, fileerr.ErrIllCall), fcb, outData
	}
}
