// Package codec is the deterministic binary encoding shared by ledger state,
// signing payloads and the peer wire format. Fixed-size values are written
// verbatim, integers as fixed-width little-endian or general naturals, and
// byte sequences with a general natural length prefix.
package codec

import (
	"encoding/binary"
	"fmt"
)

// MaxSequenceLength bounds decoded byte sequences so a hostile length prefix
// cannot force a large allocation.
const MaxSequenceLength = 1 << 24

type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Fixed(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

func (e *Encoder) Uint64(v uint64) *Encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return e
}

func (e *Encoder) Natural(v uint64) *Encoder {
	e.buf = append(e.buf, SerializeUint64(v)...)
	return e
}

func (e *Encoder) Bytes(b []byte) *Encoder {
	return e.Natural(uint64(len(b))).Fixed(b)
}

func (e *Encoder) Result() []byte {
	return e.buf
}

type Decoder struct {
	data []byte
	off  int
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || len(d.data)-d.off < n {
		return nil, ErrTruncated
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

// Fixed fills dst with the next len(dst) bytes.
func (d *Decoder) Fixed(dst []byte) error {
	b, err := d.take(len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) Natural() (uint64, error) {
	p, err := d.take(1)
	if err != nil {
		return 0, err
	}
	rest, err := d.take(int(naturalLength(p[0])))
	if err != nil {
		return 0, err
	}
	return deserializeUint64(p[0], rest)
}

// Bytes reads a length-prefixed sequence and returns a copy of it.
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Natural()
	if err != nil {
		return nil, err
	}
	if n > MaxSequenceLength {
		return nil, fmt.Errorf("%w: %d", ErrLengthTooLarge, n)
	}
	b, err := d.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Finish fails if any input is left unread.
func (d *Decoder) Finish() error {
	if d.off != len(d.data) {
		return ErrTrailingBytes
	}
	return nil
}
