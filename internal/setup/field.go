// internal/setup/field.go
package setup

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/shopspring/decimal"
)

// Width is the storage width of a field
type Width int

const (
	U8 Width = iota
	U16LE
	U16BE
)

func (w Width) size() int {
	if w == U8 {
		return 1
	}
	return 2
}

// Field maps one named value onto a byte range. Mask selects the bits the
// value occupies inside the stored word; a single-bit mask makes a flag.
// Scale is the decimal exponent of one raw unit: -1 stores tenths.
type Field struct {
	Name   string
	Offset int
	Width  Width
	Mask   uint16
	Scale  int32
	// ReadOnly fields are reported by the device and never sent back
	ReadOnly bool
}

func (f Field) mask() uint16 {
	if f.Mask != 0 {
		return f.Mask
	}
	if f.Width == U8 {
		return 0xFF
	}
	return 0xFFFF
}

func (f Field) shift() int {
	return bits.TrailingZeros16(f.mask())
}

// maxRaw is the largest raw value the field can hold
func (f Field) maxRaw() int64 {
	return int64(f.mask() >> f.shift())
}

// IsFlag reports whether the field is a single bit
func (f Field) IsFlag() bool {
	return bits.OnesCount16(f.mask()) == 1
}

func (f Field) readWord(buf []byte) uint16 {
	switch f.Width {
	case U16LE:
		return binary.LittleEndian.Uint16(buf[f.Offset:])
	case U16BE:
		return binary.BigEndian.Uint16(buf[f.Offset:])
	default:
		return uint16(buf[f.Offset])
	}
}

func (f Field) writeWord(buf []byte, w uint16) {
	switch f.Width {
	case U16LE:
		binary.LittleEndian.PutUint16(buf[f.Offset:], w)
	case U16BE:
		binary.BigEndian.PutUint16(buf[f.Offset:], w)
	default:
		buf[f.Offset] = byte(w)
	}
}

// decode extracts the scaled value from buf
func (f Field) decode(buf []byte) decimal.Decimal {
	raw := (f.readWord(buf) & f.mask()) >> f.shift()
	return decimal.New(int64(raw), f.Scale)
}

// toRaw converts a value back to its stored integer, rejecting values that
// are not an exact multiple of the scale or do not fit the mask
func (f Field) toRaw(v decimal.Decimal) (uint16, error) {
	raw := v.Shift(-f.Scale)
	if !raw.Equal(raw.Truncate(0)) {
		return 0, fmt.Errorf("%s: %s is not a multiple of %s", f.Name, v, decimal.New(1, f.Scale))
	}
	n := raw.IntPart()
	if n < 0 || n > f.maxRaw() {
		return 0, fmt.Errorf("%s: %s out of range [0, %s]", f.Name, v, decimal.New(f.maxRaw(), f.Scale))
	}
	return uint16(n), nil
}

// encode merges the value into buf, leaving bits outside the mask untouched
func (f Field) encode(buf []byte, v decimal.Decimal) error {
	raw, err := f.toRaw(v)
	if err != nil {
		return err
	}
	word := f.readWord(buf) &^ f.mask()
	word |= (raw << f.shift()) & f.mask()
	f.writeWord(buf, word)
	return nil
}
