package codec

import (
	"encoding/binary"
	"fmt"
)

// maxStringLen bounds raw string lengths read from storage.
const maxStringLen = 1 << 20

// Writer appends primitive values to a buffer.
type Writer struct {
	buf []byte
}

// Uvarint writes v as an unsigned varint.
func (w *Writer) Uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// Bool writes b as one byte.
func (w *Writer) Bool(b bool) {
	if b {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// RawString writes a length-prefixed UTF-8 string.
func (w *Writer) RawString(s string) {
	w.Uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Reader consumes primitive values written by Writer.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Uvarint reads an unsigned varint.
func (r *Reader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint at %d", ErrCorrupt, r.pos)
	}
	r.pos += n
	return v, nil
}

// Bool reads one byte written by Writer.Bool.
func (r *Reader) Bool() (bool, error) {
	if r.pos >= len(r.data) {
		return false, fmt.Errorf("%w: truncated bool at %d", ErrCorrupt, r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bool byte %d", ErrCorrupt, b)
	}
}

// RawString reads a length-prefixed string.
func (r *Reader) RawString() (string, error) {
	n, err := r.Uvarint()
	if err != nil {
		return "", err
	}
	if n > maxStringLen || int(n) > len(r.data)-r.pos {
		return "", fmt.Errorf("%w: string of %d bytes at %d", ErrCorrupt, n, r.pos)
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// Done reports whether every byte has been consumed.
func (r *Reader) Done() bool { return r.pos == len(r.data) }
