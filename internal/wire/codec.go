// Package wire implements the MmmOST byte-level wire formats: the 10-byte
// request frame, the 36-byte FCB, and the small per-op-family response
// frames, per almmmost.h and spec.md §6.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Decoder reads little-endian primitives from a byte slice. Adapted from
// the teacher's internal/proto/codec.go Decoder, kept minimal and
// dependency-free.
type Decoder struct {
	b []byte
	o int
}

func NewDecoder(b []byte) *Decoder { return &Decoder{b: b} }

func (d *Decoder) Remaining() int { return len(d.b) - d.o }

func (d *Decoder) ReadU8() (byte, error) {
	if d.Remaining() < 1 {
		return 0, fmt.Errorf("wire: need 1 byte")
	}
	v := d.b[d.o]
	d.o++
	return v, nil
}

func (d *Decoder) ReadU16() (uint16, error) {
	if d.Remaining() < 2 {
		return 0, fmt.Errorf("wire: need 2 bytes")
	}
	v := binary.LittleEndian.Uint16(d.b[d.o : d.o+2])
	d.o += 2
	return v, nil
}

func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, fmt.Errorf("wire: need %d bytes", n)
	}
	v := d.b[d.o : d.o+n]
	d.o += n
	return v, nil
}

// Encoder builds little-endian wire payloads.
type Encoder struct {
	b []byte
}

func NewEncoder(capacity int) *Encoder {
	if capacity < 0 {
		capacity = 0
	}
	return &Encoder{b: make([]byte, 0, capacity)}
}

func (e *Encoder) Bytes() []byte { return e.b }

func (e *Encoder) WriteU8(v byte) { e.b = append(e.b, v) }

func (e *Encoder) WriteU16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	e.b = append(e.b, tmp[:]...)
}

func (e *Encoder) WriteBytes(b []byte) { e.b = append(e.b, b...) }
