// Package codec implements the wire encoding (spec.md §4.12 / §6):
// 7-bit variable-length integers, length-prefixed UTF-8 strings, ID
// encoding, and the struct-type dispatch table used to decode a stream of
// mixed item/delete/gc structs.
package codec

import (
	"bytes"
	"fmt"

	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/yerr"
)

// maxVarintBits bounds var-uint decoding to 35 bits (5 groups of 7), per
// spec.md §7 DecodeError: "var-uint overflow (>35 bits)".
const maxVarintBits = 35

// Writer accumulates an encoded byte stream.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated bytes.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// WriteUvarint writes v as a little-endian base-128 varint.
func (w *Writer) WriteUvarint(v uint64) {
	for v >= 0x80 {
		w.buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	w.buf.WriteByte(byte(v))
}

// WriteByte writes a single raw byte.
func (w *Writer) WriteByte(b byte) { w.buf.WriteByte(b) }

// WriteBytes writes raw bytes with no length prefix.
func (w *Writer) WriteBytes(b []byte) { w.buf.Write(b) }

// WriteString writes a var-uint length followed by UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteUvarint(uint64(len(s)))
	w.buf.WriteString(s)
}

// WriteID encodes an ID per spec.md §4.12: var-uint client; if client is
// not the root client, var-uint clock; else var-string name + var-uint
// typeTag.
func (w *Writer) WriteID(v id.ID) {
	w.WriteUvarint(uint64(v.Client))
	if v.Client != id.RootClient {
		w.WriteUvarint(uint64(v.Clock))
		return
	}
	w.WriteString(v.Name)
	w.WriteUvarint(uint64(v.Type))
}

// Reader consumes an encoded byte stream.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps b for decoding.
func NewReader(b []byte) *Reader { return &Reader{data: b} }

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// ReadUvarint reads a base-128 varint, erroring on overflow or truncation.
func (r *Reader) ReadUvarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if r.pos >= len(r.data) {
			return 0, fmt.Errorf("%w: truncated varint", yerr.ErrDecode)
		}
		b := r.data[r.pos]
		r.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= maxVarintBits {
			return 0, fmt.Errorf("%w: varint exceeds %d bits", yerr.ErrDecode, maxVarintBits)
		}
	}
}

// ReadByte reads one raw byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: truncated byte", yerr.ErrDecode)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) || n < 0 {
		return nil, fmt.Errorf("%w: truncated bytes", yerr.ErrDecode)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadString reads a var-uint length then that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadID decodes an ID per spec.md §4.12.
func (r *Reader) ReadID() (id.ID, error) {
	client, err := r.ReadUvarint()
	if err != nil {
		return id.ID{}, err
	}
	if uint32(client) != id.RootClient {
		clock, err := r.ReadUvarint()
		if err != nil {
			return id.ID{}, err
		}
		return id.New(uint32(client), uint32(clock)), nil
	}
	name, err := r.ReadString()
	if err != nil {
		return id.ID{}, err
	}
	typ, err := r.ReadUvarint()
	if err != nil {
		return id.ID{}, err
	}
	return id.Root(name, uint8(typ)), nil
}
