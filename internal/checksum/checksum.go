// internal/checksum/checksum.go
package checksum

import (
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc16"
)

// Algorithm computes and validates the trailer of a fixed-size frame or block.
// The trailer always occupies the last TrailerLen bytes of the buffer.
type Algorithm interface {
	Name() string
	TrailerLen() int
	// Compute returns the checksum over the payload part of buf (everything but the trailer).
	Compute(buf []byte) uint16
	// Verify reports whether the trailer stored in buf matches the computed value.
	Verify(buf []byte) error
	// Seal writes the computed trailer into buf in place.
	Seal(buf []byte) error
}

// MismatchError is returned when a stored trailer does not match the computed one.
type MismatchError struct {
	Algorithm string
	Expected  uint16
	Actual    uint16
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s checksum mismatch: computed 0x%04X, stored 0x%04X", e.Algorithm, e.Expected, e.Actual)
}

// ShortBufferError is returned when a buffer cannot even hold the trailer.
type ShortBufferError struct {
	Length int
	Need   int
}

func (e *ShortBufferError) Error() string {
	return fmt.Sprintf("buffer of %d bytes too short for checksum, need at least %d", e.Length, e.Need)
}

// Sum16 returns the byte sum of data modulo 65536.
func Sum16(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// Sum8 returns the byte sum of data modulo 256.
func Sum8(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Additive is the 16-bit additive checksum with a device specific offset and
// a big-endian trailer.
type Additive struct {
	Offset uint16
}

// AdditivePlusOne is the UniLog frame checksum: sum(payload)+1, big-endian trailer.
var AdditivePlusOne = Additive{Offset: 1}

func (a Additive) Name() string    { return "additive" }
func (a Additive) TrailerLen() int { return 2 }

func (a Additive) Compute(buf []byte) uint16 {
	if len(buf) < 2 {
		return a.Offset
	}
	return Sum16(buf[:len(buf)-2]) + a.Offset
}

func (a Additive) Verify(buf []byte) error {
	if len(buf) < 2 {
		return &ShortBufferError{Length: len(buf), Need: 2}
	}
	expected := a.Compute(buf)
	actual := binary.BigEndian.Uint16(buf[len(buf)-2:])
	if expected != actual {
		return &MismatchError{Algorithm: a.Name(), Expected: expected, Actual: actual}
	}
	return nil
}

func (a Additive) Seal(buf []byte) error {
	if len(buf) < 2 {
		return &ShortBufferError{Length: len(buf), Need: 2}
	}
	binary.BigEndian.PutUint16(buf[len(buf)-2:], a.Compute(buf))
	return nil
}

// CRC16 is CRC-16/XMODEM (poly 0x1021, init 0, no reflection) with a
// little-endian trailer, as used by the UniLog2 setup block.
type CRC16 struct {
	table *crc16.Table
}

// NewCRC16 builds the XMODEM lookup table.
func NewCRC16() *CRC16 {
	return &CRC16{table: crc16.MakeTable(crc16.CRC16_XMODEM)}
}

// XModem is the shared CRC16 instance.
var XModem = NewCRC16()

func (c *CRC16) Name() string    { return "crc16-xmodem" }
func (c *CRC16) TrailerLen() int { return 2 }

// Checksum computes the CRC over the whole of data.
func (c *CRC16) Checksum(data []byte) uint16 {
	return crc16.Checksum(data, c.table)
}

func (c *CRC16) Compute(buf []byte) uint16 {
	if len(buf) < 2 {
		return c.Checksum(nil)
	}
	return c.Checksum(buf[:len(buf)-2])
}

func (c *CRC16) Verify(buf []byte) error {
	if len(buf) < 2 {
		return &ShortBufferError{Length: len(buf), Need: 2}
	}
	expected := c.Compute(buf)
	actual := binary.LittleEndian.Uint16(buf[len(buf)-2:])
	if expected != actual {
		return &MismatchError{Algorithm: c.Name(), Expected: expected, Actual: actual}
	}
	return nil
}

func (c *CRC16) Seal(buf []byte) error {
	if len(buf) < 2 {
		return &ShortBufferError{Length: len(buf), Need: 2}
	}
	binary.LittleEndian.PutUint16(buf[len(buf)-2:], c.Compute(buf))
	return nil
}

// SealSum8 writes Sum8 of buf[1:len-1] into the last byte. UniLog set
// commands are signed this way; the leading 0xC0 is excluded.
func SealSum8(buf []byte) {
	if len(buf) < 2 {
		return
	}
	buf[len(buf)-1] = Sum8(buf[1 : len(buf)-1])
}
