// Package binary decodes the primitive encodings of the WebAssembly binary
// format: LEB128 integers, names and fixed-width words.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrOverflow is returned for a LEB128 integer longer than its type allows
// or whose final byte sets bits outside the type.
var ErrOverflow = errors.New("leb128: overflow")

var errInvalidName = errors.New("invalid UTF-8 in name")

// Reader walks a byte slice. Returned slices alias the input.
type Reader struct {
	buf []byte
	off int
}

func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// Position returns the offset of the next unread byte.
func (r *Reader) Position() int { return r.off }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

func (r *Reader) ReadByte() (byte, error) {
	if r.Len() == 0 {
		return 0, io.EOF
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// ReadBytes returns the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	start := r.off
	r.off += n
	return r.buf[start:r.off], nil
}

func (r *Reader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.leb(32, false)
	return uint32(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	return r.leb(64, false)
}

func (r *Reader) ReadS64() (int64, error) {
	v, err := r.leb(64, true)
	return int64(v), err
}

// leb decodes an unsigned or signed LEB128 integer of the given bit width.
// An encoding uses at most ceil(bits/7) bytes; in the last byte the bits
// beyond the width must be zero (unsigned) or copies of the sign bit.
func (r *Reader) leb(bits uint, signed bool) (uint64, error) {
	maxBytes := (bits + 6) / 7
	var v uint64
	for i := uint(0); ; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}
		shift := 7 * i
		if i == maxBytes-1 {
			if b&0x80 != 0 || !fitsLast(b, bits-shift, signed) {
				return 0, r.wrapError(ErrOverflow)
			}
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 != 0 {
			continue
		}
		shift += 7
		if signed && shift < 64 && b&0x40 != 0 {
			v |= ^uint64(0) << shift
		}
		return v, nil
	}
}

// fitsLast checks the payload of a final LEB128 byte that carries only
// `used` significant bits of the value.
func fitsLast(b byte, used uint, signed bool) bool {
	p := b & 0x7f
	if !signed {
		return p>>used == 0
	}
	// sign bit and the unused bits above it must all agree
	high := p >> (used - 1)
	return high == 0 || high == 0x7f>>(used-1)
}

// ReadName reads a length-prefixed UTF-8 string.
func (r *Reader) ReadName() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	data, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", r.wrapError(errInvalidName)
	}
	return string(data), nil
}

// ReadU32LE reads a fixed four-byte little-endian word.
func (r *Reader) ReadU32LE() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (r *Reader) wrapError(err error) error {
	return fmt.Errorf("at position %d: %w", r.off, err)
}

// ParseError locates a decoding failure in the module.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("wasm: at position %d: %v", e.Position, e.Err)
	}
	return fmt.Sprintf("wasm: %s at position %d: %v", e.Section, e.Position, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WrapError reports err at the reader's offset relative to base, the
// position of the reader's first byte in the module.
func (r *Reader) WrapError(section string, base int, err error) error {
	return &ParseError{Err: err, Section: section, Position: base + r.off}
}
