package setup

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unilog-service/internal/checksum"
	"unilog-service/internal/protocol"
)

func gen1Frame(t *testing.T, set map[int]byte) []byte {
	t.Helper()
	buf := make([]byte, 24)
	buf[0], buf[1], buf[2] = 0xC0, 0x03, 0x01
	for i, v := range set {
		buf[i] = v
	}
	require.NoError(t, checksum.AdditivePlusOne.Seal(buf))
	return buf
}

func TestGen1RuntimeDecode(t *testing.T) {
	frame := gen1Frame(t, map[int]byte{
		4: 1, 5: 2,
		6: 0x01, 7: 0x2C, // 300 telegrams
		8:  112,
		10: 4,
		11: 0x80 | 14,
		12: 0x80 | 5,
		13: 15,
		14: 0x80 | 30,
		15: 2,
		16: 0x01, 17: 0x65,
		18: 0x02,
		19: 0x80 | 0x01, 20: 0xF4,
		21: 67,
	})

	b, err := Gen1Runtime.Decode(frame)
	require.NoError(t, err)

	require.Equal(t, 1, b.Int(FieldModusA2))
	require.Equal(t, 2, b.Int(FieldModusA3))
	require.Equal(t, 300, b.Int(FieldMemoryUsed))
	require.Equal(t, "1.12", b.values[FieldFirmware].String())
	require.Equal(t, 4, b.Int(FieldTimeInterval))
	require.True(t, b.Bool(FieldMotorPoles))
	require.Equal(t, 14, b.Int(FieldBladeOrPoleCount))
	require.True(t, b.Bool(FieldAutoStartCurrentEnabled))
	require.Equal(t, 5, b.Int(FieldAutoStartCurrent))
	require.False(t, b.Bool(FieldAutoStartRxEnabled))
	require.Equal(t, 15, b.Int(FieldAutoStartRx))
	require.True(t, b.Bool(FieldAutoStartTimeEnabled))
	require.Equal(t, 30, b.Int(FieldAutoStartTime))
	require.Equal(t, 357, b.Int(FieldSerialNumber))
	require.Equal(t, 2, b.Int(FieldModusA1), "byte 18 = 0x02 selects the speed sensor")
	require.True(t, b.Bool(FieldLimiterEnabled))
	require.Equal(t, 500, b.Int(FieldLimiter))
	require.Equal(t, "6.7", b.values[FieldGearRatio].String())
	require.Empty(t, b.CompatibilityWarning())
}

func TestGen1RuntimeRoundTripPreservesHeader(t *testing.T) {
	frame := gen1Frame(t, map[int]byte{11: 0x80 | 3, 18: 1, 21: 10, 3: 0x5A})
	b, err := Gen1Runtime.Decode(frame)
	require.NoError(t, err)

	out, err := b.Encode()
	require.NoError(t, err)
	require.Equal(t, frame, out)
}

func TestDecodeRejectsLengthBeforeChecksum(t *testing.T) {
	_, err := Gen1Runtime.Decode(make([]byte, 23))
	require.ErrorIs(t, err, protocol.ErrLength)

	_, err = Gen2Setup.Decode(make([]byte, 191))
	require.ErrorIs(t, err, protocol.ErrLength)
}

func TestDecodeRejectsAnySingleBitFlip(t *testing.T) {
	encoded, err := NewGen2Setup().Encode()
	require.NoError(t, err)

	for _, i := range []int{0, 2, 4, 6, 75, 88, 128, 137, 150, 189, 190, 191} {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), encoded...)
			flipped[i] ^= 1 << bit
			_, err := Gen2Setup.Decode(flipped)
			require.ErrorIs(t, err, protocol.ErrChecksum, "byte %d bit %d", i, bit)
		}
	}

	frame := gen1Frame(t, map[int]byte{10: 3})
	frame[10] ^= 0x10
	_, err = Gen1Runtime.Decode(frame)
	require.ErrorIs(t, err, protocol.ErrChecksum)
}

func TestGen2DefaultRoundTrip(t *testing.T) {
	b := NewGen2Setup()
	encoded, err := b.Encode()
	require.NoError(t, err)
	require.Len(t, encoded, Gen2SetupSize)
	require.Equal(t, byte(0x65), encoded[0])
	require.Equal(t, byte(0x01), encoded[1])
	require.Equal(t, byte(103), encoded[2])
	require.Equal(t, byte(mLinkUnassigned), encoded[137])

	decoded, err := Gen2Setup.Decode(encoded)
	require.NoError(t, err)
	require.True(t, b.Equal(decoded))
	require.Equal(t, "4.5", decoded.values[FieldVoltageRxAlarm].String())
	require.Equal(t, "1.5", decoded.values[FieldStartRx].String())
	require.True(t, decoded.Bool(FieldStartCurrentEnabled))
	require.False(t, decoded.Bool(FieldStartRxEnabled))

	again, err := decoded.Encode()
	require.NoError(t, err)
	require.Equal(t, encoded, again)
}

func TestGen2FlagsShareOneWord(t *testing.T) {
	b := NewGen2Setup()
	require.NoError(t, b.SetBool(FieldTelAlarmCurrent, true))
	require.NoError(t, b.SetBool(FieldTelAlarmHeight, true))
	require.NoError(t, b.SetBool(FieldTelAlarmCellVoltage, true))
	require.NoError(t, b.SetBool(FieldStartRxEnabled, true))

	encoded, err := b.Encode()
	require.NoError(t, err)
	require.Equal(t, byte(0x51), encoded[74])
	require.Equal(t, byte(0x00), encoded[75])
	require.Equal(t, byte(0x03), encoded[6])
}

func TestGen2FirmwareMismatchWarnsButDecodes(t *testing.T) {
	b := NewGen2Setup()
	require.NoError(t, b.SetInt(FieldFirmware, 110))
	encoded, err := b.Encode()
	require.NoError(t, err)

	decoded, err := Gen2Setup.Decode(encoded)
	require.NoError(t, err)
	require.Contains(t, decoded.CompatibilityWarning(), "110")
}

func TestSetValidatesScaleAndRange(t *testing.T) {
	b := NewGen2Setup()
	require.Error(t, b.Set(FieldVoltageAlarm, decimal.RequireFromString("10.25")))
	require.Error(t, b.Set(FieldCurrentAlarm, decimal.NewFromInt(-1)))
	require.Error(t, b.Set(FieldMLinkA1, decimal.NewFromInt(300)))
	require.Error(t, b.Set("no_such_field", decimal.Zero))
	require.NoError(t, b.Set(FieldVoltageAlarm, decimal.RequireFromString("11.1")))

	g1 := Gen1Runtime.New()
	require.Error(t, g1.SetInt(FieldBladeOrPoleCount, 128))
	require.NoError(t, g1.SetInt(FieldBladeOrPoleCount, 127))
	require.Error(t, g1.SetInt(FieldMotorPoles, 2))
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	b := NewGen2Setup()
	err := b.Update(map[string]decimal.Decimal{
		FieldDataRate:     decimal.NewFromInt(4),
		FieldVoltageAlarm: decimal.RequireFromString("0.05"),
	})
	require.Error(t, err)
	require.Equal(t, 2, b.Int(FieldDataRate))
}

func TestBlockJSON(t *testing.T) {
	b := Gen1Telemetry.New()
	data, err := json.Marshal(b)
	require.NoError(t, err)

	var out struct {
		Layout string            `json:"layout"`
		Values map[string]string `json:"values"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, "unilog-telemetry", out.Layout)
	require.Equal(t, "14", out.Values[FieldAlarmVoltageStart])
	require.Equal(t, "60", out.Values[FieldAlarmCurrent])
}

func TestFileStoreSaveLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileStore(fs, "/var/lib/unilog/setup", zap.NewNop())
	require.NoError(t, err)

	b := NewGen2Setup()
	require.NoError(t, b.SetInt(FieldDataRate, 0))
	require.NoError(t, store.Save("glider.ini", b))

	loaded, err := store.Load("glider.ini", Gen2Setup)
	require.NoError(t, err)
	require.True(t, b.Equal(loaded))

	names, err := store.List()
	require.NoError(t, err)
	require.Equal(t, []string{"glider.ini"}, names)

	require.NoError(t, store.SaveRaw("broken.ini", make([]byte, 100)))
	_, err = store.Load("broken.ini", Gen2Setup)
	require.ErrorIs(t, err, protocol.ErrLength)

	_, err = store.Load("missing.ini", Gen2Setup)
	require.Error(t, err)

	require.NoError(t, store.Delete("broken.ini"))
	names, err = store.List()
	require.NoError(t, err)
	require.Len(t, names, 1)
}

func TestLayoutByName(t *testing.T) {
	for _, l := range []*Layout{Gen1Runtime, Gen1Telemetry, Gen2Setup} {
		got, ok := LayoutByName(l.Name)
		require.True(t, ok)
		require.Same(t, l, got)
	}
	_, ok := LayoutByName("unilog3-setup")
	require.False(t, ok)
}
