// Package container decodes the QuickJS serialized module format: version
// byte, atom table, and the tagged object tree carrying function bytecode.
package container

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"

	"deqjs/internal/qjs"
)

// reader wraps a byte slice with a cursor for sequential little-endian
// reads. Reads past the end return *qjs.TruncatedInputError and never touch
// memory out of bounds.
type reader struct {
	data  []byte
	pos   int
	mode  qjs.Mode
	diags []qjs.Diagnostic
	depth int
}

func newReader(data []byte, mode qjs.Mode) *reader {
	return &reader{data: data, mode: mode}
}

func (r *reader) remaining() int { return len(r.data) - r.pos }

func (r *reader) truncated(need int, what string) error {
	return &qjs.TruncatedInputError{Offset: r.pos, Need: need, Have: r.remaining(), What: what}
}

func (r *reader) u8() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, r.truncated(1, "u8")
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) peekU8() (byte, bool) {
	if r.pos >= len(r.data) {
		return 0, false
	}
	return r.data[r.pos], true
}

func (r *reader) u16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, r.truncated(2, "u16")
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, r.truncated(4, "u32")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, r.truncated(8, "u64")
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) f64() (float64, error) {
	v, err := r.u64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative byte count %d at offset %d", n, r.pos)
	}
	if n > qjs.MaxReadBytes {
		return nil, fmt.Errorf("byte count %d exceeds limit %d at offset %d", n, qjs.MaxReadBytes, r.pos)
	}
	if r.pos+n > len(r.data) {
		return nil, r.truncated(n, fmt.Sprintf("bytes(%d)", n))
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b, nil
}

// leb128 reads an unsigned LEB128-encoded uint32.
func (r *reader) leb128() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.u8()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 32 {
			return 0, fmt.Errorf("leb128 overflow at offset %d", r.pos)
		}
	}
}

// sleb128 reads a signed LEB128-encoded int32.
func (r *reader) sleb128() (int32, error) {
	var result int64
	var shift uint
	var b byte
	for {
		var err error
		b, err = r.u8()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 64 {
			return 0, fmt.Errorf("sleb128 overflow at offset %d", r.pos)
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= ^int64(0) << shift
	}
	return int32(result), nil
}

// qstring reads a QuickJS string: leb128 header len<<1|isWide, then either
// narrow bytes or UTF-16LE code units.
func (r *reader) qstring() (string, error) {
	header, err := r.leb128()
	if err != nil {
		return "", fmt.Errorf("string header: %w", err)
	}
	n := int(header >> 1)
	if header&1 == 0 {
		b, err := r.bytes(n)
		if err != nil {
			return "", fmt.Errorf("string data: %w", err)
		}
		return string(b), nil
	}
	raw, err := r.bytes(n * 2)
	if err != nil {
		return "", fmt.Errorf("wide string data: %w", err)
	}
	units := make([]uint16, n)
	for i := 0; i < n; i++ {
		units[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return string(utf16.Decode(units)), nil
}

// clampCount validates a parsed count against remaining bytes and the
// absolute allocation cap. Strict mode errors; BestEffort clamps and
// records a diagnostic.
func (r *reader) clampCount(count uint32, minEntryBytes int, what string) (uint32, error) {
	if minEntryBytes < 1 {
		minEntryBytes = 1
	}
	limit := uint32(r.remaining() / minEntryBytes)
	if limit > qjs.MaxAllocCount {
		limit = qjs.MaxAllocCount
	}
	if count > limit {
		if r.mode == qjs.Strict {
			return 0, fmt.Errorf("%s count %d exceeds limit %d at offset %d", what, count, limit, r.pos)
		}
		r.diags = append(r.diags, qjs.Diagnostic{
			Offset: r.pos,
			Kind:   "clamped",
			Msg:    fmt.Sprintf("%s count %d clamped to %d", what, count, limit),
		})
		count = limit
	}
	return count, nil
}

// checkDepth guards value-tree recursion. Strict mode errors; BestEffort
// records a diagnostic and reports exceeded.
func (r *reader) checkDepth(what string) (exceeded bool, err error) {
	if r.depth > qjs.MaxDecodeDepth {
		if r.mode == qjs.Strict {
			return true, fmt.Errorf("%s: recursion depth %d exceeds limit %d", what, r.depth, qjs.MaxDecodeDepth)
		}
		r.diags = append(r.diags, qjs.Diagnostic{
			Offset: r.pos,
			Kind:   "overflow",
			Msg:    fmt.Sprintf("%s: recursion depth %d exceeded limit %d", what, r.depth, qjs.MaxDecodeDepth),
		})
		return true, nil
	}
	return false, nil
}
