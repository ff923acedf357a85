package checksum

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func frame24(payload byte) []byte {
	buf := make([]byte, 24)
	for i := 0; i < 22; i++ {
		buf[i] = payload + byte(i)
	}
	return buf
}

func TestAdditivePlusOne(t *testing.T) {
	buf := frame24(0x10)
	require.NoError(t, AdditivePlusOne.Seal(buf))

	var sum uint16
	for _, b := range buf[:22] {
		sum += uint16(b)
	}
	require.Equal(t, sum+1, uint16(buf[22])<<8|uint16(buf[23]))
	require.NoError(t, AdditivePlusOne.Verify(buf))
}

func TestAdditiveRejectsSingleBitFlip(t *testing.T) {
	buf := frame24(0x33)
	require.NoError(t, AdditivePlusOne.Seal(buf))

	for i := 0; i < len(buf); i++ {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), buf...)
			flipped[i] ^= 1 << bit
			err := AdditivePlusOne.Verify(flipped)
			var mismatch *MismatchError
			require.True(t, errors.As(err, &mismatch), "byte %d bit %d", i, bit)
		}
	}
}

func TestAdditiveShortBuffer(t *testing.T) {
	var short *ShortBufferError
	require.ErrorAs(t, AdditivePlusOne.Verify([]byte{1}), &short)
	require.ErrorAs(t, AdditivePlusOne.Seal(nil), &short)
}

func TestCRC16XModemCheckValue(t *testing.T) {
	require.Equal(t, uint16(0x31C3), XModem.Checksum([]byte("123456789")))
}

func TestCRC16SealVerifyLittleEndian(t *testing.T) {
	block := make([]byte, 192)
	block[0] = 0x65
	block[1] = 0x01
	block[2] = 103
	require.NoError(t, XModem.Seal(block))

	crc := XModem.Checksum(block[:190])
	require.Equal(t, byte(crc), block[190])
	require.Equal(t, byte(crc>>8), block[191])
	require.NoError(t, XModem.Verify(block))

	for i := 0; i < len(block); i++ {
		flipped := append([]byte(nil), block...)
		flipped[i] ^= 0x04
		require.Error(t, XModem.Verify(flipped), "byte %d", i)
	}
}

func TestCRC16DiffersFromAdditiveOnSameBlock(t *testing.T) {
	block := frame24(0x01)
	require.NotEqual(t, AdditivePlusOne.Compute(block), XModem.Compute(block))
	require.Equal(t, XModem.Compute(block), XModem.Compute(block))
}

func TestSealSum8(t *testing.T) {
	cmd := []byte{0xC0, 0x03, 0x02, 0x03, 0x82, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x0A, 0x21, 0x00}
	SealSum8(cmd)
	var sum byte
	for _, b := range cmd[1 : len(cmd)-1] {
		sum += b
	}
	require.Equal(t, sum, cmd[len(cmd)-1])
}
