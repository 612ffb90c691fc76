package wire

import "fmt"

// FCBSize is the on-wire size of one File Control Block.
const FCBSize = 36

// FCB is the 36-byte CP/M File Control Block carried in every file-op
// request and echoed back in the response, per almmmost.h's cpm_fcb_t and
// spec.md §6.2.
type FCB struct {
	Drv    byte
	Name   [8]byte
	Ext    [3]byte
	CurExt byte
	S1     byte
	S2     byte
	RecCnt byte
	Al     [16]byte
	CurRec byte
	RRec   [3]byte
}

// DecodeFCB parses a 36-byte wire FCB.
func DecodeFCB(b []byte) (FCB, error) {
	var f FCB
	if len(b) < FCBSize {
		return f, fmt.Errorf("wire: FCB needs %d bytes, got %d", FCBSize, len(b))
	}
	f.Drv = b[0]
	copy(f.Name[:], b[1:9])
	copy(f.Ext[:], b[9:12])
	f.CurExt = b[12]
	f.S1 = b[13]
	f.S2 = b[14]
	f.RecCnt = b[15]
	copy(f.Al[:], b[16:32])
	f.CurRec = b[32]
	copy(f.RRec[:], b[33:36])
	return f, nil
}

// Encode serializes the FCB back to 36 wire bytes.
func (f *FCB) Encode() []byte {
	out := make([]byte, FCBSize)
	out[0] = f.Drv
	copy(out[1:9], f.Name[:])
	copy(out[9:12], f.Ext[:])
	out[12] = f.CurExt
	out[13] = f.S1
	out[14] = f.S2
	out[15] = f.RecCnt
	copy(out[16:32], f.Al[:])
	out[32] = f.CurRec
	copy(out[33:36], f.RRec[:])
	return out
}

// RenameDest reinterprets an FCB's al[] region (bytes 16..31 on the wire,
// i.e. Al[0:16]) as the rename form's destination name(8)+ext(3)+5 unused
// bytes, per spec.md §6.2's "rename form".
func (f *FCB) RenameDest() (name [8]byte, ext [3]byte) {
	copy(name[:], f.Al[0:8])
	copy(ext[:], f.Al[8:11])
	return
}
