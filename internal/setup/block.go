// internal/setup/block.go
package setup

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"unilog-service/internal/checksum"
	"unilog-service/internal/protocol"
)

// Layout describes a fixed-size configuration block
type Layout struct {
	Name     string
	Size     int
	Checksum checksum.Algorithm
	Fields   []Field

	// FirmwareField and ExpectedFirmware drive CompatibilityWarning.
	// An empty FirmwareField disables the check.
	FirmwareField    string
	ExpectedFirmware decimal.Decimal

	// Defaults are applied by New; unlisted fields start at zero.
	Defaults map[string]decimal.Decimal
}

// Field returns the named field definition
func (l *Layout) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// CheckWritable rejects values for unknown or read-only fields
func (l *Layout) CheckWritable(values map[string]decimal.Decimal) error {
	for name := range values {
		f, ok := l.Field(name)
		if !ok {
			return fmt.Errorf("%s: unknown field %q", l.Name, name)
		}
		if f.ReadOnly {
			return fmt.Errorf("%s: field %q is read-only", l.Name, name)
		}
	}
	return nil
}

// Decode validates length and checksum, then maps every field
func (l *Layout) Decode(data []byte) (*Block, error) {
	op := "decode " + l.Name
	if len(data) != l.Size {
		return nil, protocol.LengthError(op, len(data), l.Size)
	}
	if err := l.Checksum.Verify(data); err != nil {
		return nil, protocol.ChecksumError(op, err)
	}

	b := &Block{
		layout: l,
		raw:    append([]byte(nil), data...),
		values: make(map[string]decimal.Decimal, len(l.Fields)),
	}
	for _, f := range l.Fields {
		b.values[f.Name] = f.decode(b.raw)
	}
	return b, nil
}

// New returns a block holding the layout defaults
func (l *Layout) New() *Block {
	b := &Block{
		layout: l,
		raw:    make([]byte, l.Size),
		values: make(map[string]decimal.Decimal, len(l.Fields)),
	}
	for _, f := range l.Fields {
		b.values[f.Name] = decimal.New(0, f.Scale)
	}
	for name, v := range l.Defaults {
		b.values[name] = v
	}
	return b
}

// Block is a decoded configuration block. Bytes not covered by a field are
// carried through unchanged.
type Block struct {
	layout *Layout
	raw    []byte
	values map[string]decimal.Decimal
}

// Layout returns the block's layout
func (b *Block) Layout() *Layout { return b.layout }

// Encode writes every field into a copy of the original bytes and seals the
// checksum
func (b *Block) Encode() ([]byte, error) {
	out := append([]byte(nil), b.raw...)
	for _, f := range b.layout.Fields {
		if err := f.encode(out, b.values[f.Name]); err != nil {
			return nil, fmt.Errorf("encode %s: %w", b.layout.Name, err)
		}
	}
	if err := b.layout.Checksum.Seal(out); err != nil {
		return nil, fmt.Errorf("encode %s: %w", b.layout.Name, err)
	}
	return out, nil
}

// Get returns the named value
func (b *Block) Get(name string) (decimal.Decimal, error) {
	v, ok := b.values[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: unknown field %q", b.layout.Name, name)
	}
	return v, nil
}

// Int returns the named value truncated to an integer, 0 for unknown fields
func (b *Block) Int(name string) int {
	return int(b.values[name].IntPart())
}

// Bool returns whether the named value is non-zero
func (b *Block) Bool(name string) bool {
	return !b.values[name].IsZero()
}

// Set validates and stores a value
func (b *Block) Set(name string, v decimal.Decimal) error {
	f, ok := b.layout.Field(name)
	if !ok {
		return fmt.Errorf("%s: unknown field %q", b.layout.Name, name)
	}
	if _, err := f.toRaw(v); err != nil {
		return err
	}
	b.values[name] = v
	return nil
}

// SetInt stores an integer value
func (b *Block) SetInt(name string, v int) error {
	return b.Set(name, decimal.NewFromInt(int64(v)))
}

// SetBool stores a flag
func (b *Block) SetBool(name string, v bool) error {
	if v {
		return b.SetInt(name, 1)
	}
	return b.SetInt(name, 0)
}

// Update applies several values; nothing is stored if any of them is invalid
func (b *Block) Update(values map[string]decimal.Decimal) error {
	for name, v := range values {
		f, ok := b.layout.Field(name)
		if !ok {
			return fmt.Errorf("%s: unknown field %q", b.layout.Name, name)
		}
		if _, err := f.toRaw(v); err != nil {
			return err
		}
	}
	for name, v := range values {
		b.values[name] = v
	}
	return nil
}

// Values returns a copy of all named values
func (b *Block) Values() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// Names returns the field names in table order
func (b *Block) Names() []string {
	names := make([]string, len(b.layout.Fields))
	for i, f := range b.layout.Fields {
		names[i] = f.Name
	}
	return names
}

// Equal compares the named values of two blocks of the same layout
func (b *Block) Equal(other *Block) bool {
	if other == nil || b.layout != other.layout {
		return false
	}
	for _, f := range b.layout.Fields {
		if !b.values[f.Name].Equal(other.values[f.Name]) {
			return false
		}
	}
	return true
}

// CompatibilityWarning is non-empty when the firmware differs from the one
// the layout was written for. Decoding still succeeds in that case.
func (b *Block) CompatibilityWarning() string {
	if b.layout.FirmwareField == "" {
		return ""
	}
	fw := b.values[b.layout.FirmwareField]
	if fw.Equal(b.layout.ExpectedFirmware) {
		return ""
	}
	return fmt.Sprintf("%s firmware %s differs from supported %s, fields may be misinterpreted",
		b.layout.Name, fw, b.layout.ExpectedFirmware)
}

// MarshalJSON renders the layout name and values with stable key order
func (b *Block) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(b.values))
	for k := range b.values {
		names = append(names, k)
	}
	sort.Strings(names)

	values := make(map[string]decimal.Decimal, len(names))
	for _, k := range names {
		values[k] = b.values[k]
	}
	payload := struct {
		Layout  string                     `json:"layout"`
		Values  map[string]decimal.Decimal `json:"values"`
		Warning string                     `json:"warning,omitempty"`
	}{
		Layout:  b.layout.Name,
		Values:  values,
		Warning: b.CompatibilityWarning(),
	}
	return json.Marshal(payload)
}
