package wire

import "testing"

func TestDecodeRequestTooShort(t *testing.T) {
	if _, err := DecodeRequest(make([]byte, RequestSize-1)); err == nil {
		t.Error("DecodeRequest with a short buffer should error")
	}
}

func TestDecodeRequestFields(t *testing.T) {
	buf := []byte{1, 'F', 2, 33, 0xAA, 7, 0, 5, 6, 0}
	r, err := DecodeRequest(buf)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if r.SOR != 1 || r.Op != 'F' || r.Byte2 != 2 || r.Byte3 != 33 {
		t.Fatalf("decoded header mismatch: %+v", r)
	}
	want := [6]byte{0xAA, 7, 0, 5, 6, 0}
	if r.Rest != want {
		t.Errorf("Rest = %v, want %v", r.Rest, want)
	}
}

func TestAsFileRequestAndFileNo(t *testing.T) {
	buf := []byte{1, 'F', 2 /* logdrv */, 33 /* bdosfunc */, 9 /* usrcode */, 0x34 /* filenum lo */, 0x12 /* filenum hi */, 4 /* curbdisk */, 5 /* curbfunc */, 0}
	r, err := DecodeRequest(buf)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	fr := r.AsFileRequest()
	if fr.LogDrv != 2 || fr.BDOSFunc != 33 || fr.UserCode != 9 || fr.CurBDisk != 4 || fr.CurBFunc != 5 {
		t.Fatalf("AsFileRequest mismatch: %+v", fr)
	}
	if got := fr.FileNo(); got != 0x1234 {
		t.Errorf("FileNo() = %#x, want 0x1234", got)
	}
}

func TestFileResponseEncode(t *testing.T) {
	r := FileResponse{FileNo: 0x0102, RetCode: 5, Err: 9}
	got := r.Encode()
	want := []byte{0x02, 0x01, 5, 9}
	if string(got) != string(want) {
		t.Errorf("FileResponse.Encode() = %v, want %v", got, want)
	}
}

func TestDiskResponseEncode(t *testing.T) {
	r := DiskResponse{RetCode: 1, ErrCode: 2, Err: 3}
	got := r.Encode()
	want := []byte{1, 0, 2, 3}
	if string(got) != string(want) {
		t.Errorf("DiskResponse.Encode() = %v, want %v", got, want)
	}
}

func TestFCBRoundTrip(t *testing.T) {
	var f FCB
	f.Drv = 1
	copy(f.Name[:], "FOO     ")
	copy(f.Ext[:], "TXT")
	f.CurExt = 2
	f.RecCnt = 10
	for i := range f.Al {
		f.Al[i] = byte(i)
	}
	f.CurRec = 5
	f.RRec = [3]byte{1, 2, 3}

	enc := f.Encode()
	if len(enc) != FCBSize {
		t.Fatalf("Encode length = %d, want %d", len(enc), FCBSize)
	}
	got, err := DecodeFCB(enc)
	if err != nil {
		t.Fatalf("DecodeFCB: %v", err)
	}
	if got != f {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, f)
	}
}

func TestDecodeFCBTooShort(t *testing.T) {
	if _, err := DecodeFCB(make([]byte, FCBSize-1)); err == nil {
		t.Error("DecodeFCB with a short buffer should error")
	}
}

func TestFCBRenameDest(t *testing.T) {
	var f FCB
	copy(f.Al[0:8], "NEWNAME ")
	copy(f.Al[8:11], "TXT")
	name, ext := f.RenameDest()
	if string(name[:]) != "NEWNAME " {
		t.Errorf("RenameDest name = %q, want %q", name, "NEWNAME ")
	}
	if string(ext[:]) != "TXT" {
		t.Errorf("RenameDest ext = %q, want %q", ext, "TXT")
	}
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	e := NewEncoder(0)
	e.WriteU8(0x42)
	e.WriteU16(0x1234)
	e.WriteBytes([]byte{1, 2, 3})

	d := NewDecoder(e.Bytes())
	u8, err := d.ReadU8()
	if err != nil || u8 != 0x42 {
		t.Fatalf("ReadU8 = %v, %v, want 0x42, nil", u8, err)
	}
	u16, err := d.ReadU16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("ReadU16 = %v, %v, want 0x1234, nil", u16, err)
	}
	rest, err := d.ReadBytes(3)
	if err != nil || string(rest) != string([]byte{1, 2, 3}) {
		t.Fatalf("ReadBytes = %v, %v, want [1 2 3], nil", rest, err)
	}
	if d.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", d.Remaining())
	}
}

func TestDecoderUnderflow(t *testing.T) {
	d := NewDecoder([]byte{1})
	if _, err := d.ReadU16(); err == nil {
		t.Error("ReadU16 on a 1-byte buffer should error")
	}
	if _, err := d.ReadBytes(5); err == nil {
		t.Error("ReadBytes(5) on a 1-byte buffer should error")
	}
}
