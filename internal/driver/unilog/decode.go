// internal/driver/unilog/decode.go
package unilog

import (
	"encoding/binary"
	"time"

	"unilog-service/internal/checksum"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/pkg/driver"
)

func le16(b []byte, i int) int32 {
	return int32(binary.LittleEndian.Uint16(b[i:]))
}

// signed folds values above 32768 into the negative range the way the
// firmware encodes them
func signed(v int32) int32 {
	if v > 32768 {
		return v - 65536
	}
	return v
}

// Modes returns the analog input modes carried in a telegram
func Modes(t []byte) (a1, a2, a3 int) {
	a1 = int(t[7]&0xF0) >> 4
	if a1 > 3 {
		a1 = 3
	}
	a2 = int(t[4]&0x30) >> 4
	a3 = int(t[4]&0xC0) >> 6
	return a1, a2, a3
}

// DecodeValues converts a 24 byte telegram into raw channel values. Derived
// channels are left at zero.
func DecodeValues(t []byte) []int32 {
	p := make([]int32, channelCount)

	p[ChVoltageRx] = (le16(t, 6) & 0x0FFF) * 10
	p[ChVoltage] = signed(le16(t, 8)) * 10

	// asymmetric range for the 400 A sensor
	current := le16(t, 10)
	if current > 55536 {
		current -= 65536
	}
	p[ChCurrent] = current * 10

	rpm := le16(t, 12)
	if rpm > 50000 {
		rpm = (rpm-50000)*10 + 50000
	}
	p[ChRevolution] = rpm * 1000

	p[ChHeight] = signed(le16(t, 14)+20000) * 100

	_, a2, a3 := Modes(t)
	p[ChA1] = signed(le16(t, 16)) * 100

	switch a2 {
	case 0, 2:
		p[ChA2] = signed(int32(t[19]&0xEF)<<8|int32(t[18])) * 100
	default:
		p[ChA2] = le16(t, 18) * 1000
	}

	a3raw := int32(t[21]&0xEF)<<8 | int32(t[20])
	if a3 == 2 {
		p[ChA3] = a3raw * 100
	} else {
		p[ChA3] = signed(a3raw) * 100
	}
	return p
}

// TimeStep returns the sample period stored in the first four bytes
func TimeStep(t []byte) time.Duration {
	if len(t) < 4 {
		return 0
	}
	return time.Duration(binary.LittleEndian.Uint32(t)) * time.Millisecond
}

// verifyTelegram checks length and the additive checksum
func verifyTelegram(op string, t []byte) error {
	if len(t) != TelegramLength {
		return protocol.LengthError(op, len(t), TelegramLength)
	}
	if err := checksum.AdditivePlusOne.Verify(t); err != nil {
		return protocol.ChecksumError(op, err)
	}
	return nil
}

// Decoder decodes stored UniLog telegrams. It needs no device link and is
// embedded by Driver.
type Decoder struct{}

var _ driver.TelegramDecoder = Decoder{}

// DecodeTelegram implements driver.TelegramDecoder
func (Decoder) DecodeTelegram(t []byte, channels *model.ChannelConfig) (*model.SamplePoint, error) {
	if err := verifyTelegram("decode telegram", t); err != nil {
		return nil, err
	}
	if channels != nil && channels.Len() == channelCount {
		a1, a2, a3 := Modes(t)
		setAnalogMode(channels, ChA1, a1)
		setAnalogMode(channels, ChA2, a2)
		setAnalogMode(channels, ChA3, a3)
	}
	return &model.SamplePoint{Values: DecodeValues(t)}, nil
}

// TelegramLength implements driver.TelegramDecoder
func (Decoder) TelegramLength() int { return TelegramLength }

// SkipTelegrams implements driver.TelegramDecoder. The first two telegrams
// of a record set are the device's min and max records.
func (Decoder) SkipTelegrams() int { return 2 }

// MinTelegrams implements driver.TelegramDecoder
func (Decoder) MinTelegrams() int { return 5 }

// TimeStep implements driver.TelegramDecoder
func (Decoder) TimeStep(t []byte) time.Duration { return TimeStep(t) }

// Channels returns the channel layout stored telegrams decode into
func (Decoder) Channels() model.ChannelConfig { return DefaultChannels() }
