package unilog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unilog-service/internal/calculation"
	"unilog-service/internal/checksum"
	"unilog-service/internal/gatherer"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/protocol/protocoltest"
	"unilog-service/internal/setup"
	"unilog-service/pkg/driver"
)

func telegram(t *testing.T, set map[int]byte) []byte {
	t.Helper()
	buf := make([]byte, TelegramLength)
	for i, v := range set {
		buf[i] = v
	}
	require.NoError(t, checksum.AdditivePlusOne.Seal(buf))
	return buf
}

func fastTiming() driver.Options {
	return driver.Options{Timing: driver.Timing{
		ProbeDelay:     time.Microsecond,
		StatusTimeout:  time.Millisecond,
		FrameTimeout:   time.Millisecond,
		SettleDelay:    time.Microsecond,
		QuietPeriod:    time.Microsecond,
		LiveRetries:    5,
		LiveRetryDelay: time.Microsecond,
	}}
}

func newDriver(t *testing.T) (*Driver, *protocoltest.Transport) {
	t.Helper()
	tr := protocoltest.New("/dev/ttyUSB0")
	d := New(&model.Device{DeviceID: "unilog-1"}, tr, zap.NewNop(), fastTiming())
	return d, tr
}

func configFrame(t *testing.T, memoryUsed int, interval, a1 byte) []byte {
	return telegram(t, map[int]byte{
		0: 0xC0, 1: 0x03, 2: 0x01,
		6: byte(memoryUsed >> 8), 7: byte(memoryUsed),
		8:  112,
		10: interval,
		18: a1,
	})
}

func TestDecodeValues(t *testing.T) {
	frame := telegram(t, map[int]byte{
		0: 0xFA, // 250 ms
		4: 0x10, // a2 mode 1
		6: 0xF4, 7: 0x21, // a1 mode 2, receiver 500
		8: 0xB0, 9: 0x04, // 1200
		10: 0xF6, 11: 0xFF, // -10
		12: 0xB4, 13: 0xC3, // 50100
		14: 0x00, 15: 0x00,
		16: 0xFA, 17: 0x00,
		18: 0x07, 19: 0x00,
		20: 0xFF, 21: 0xFF,
	})

	v := DecodeValues(frame)
	require.Len(t, v, channelCount)
	require.Equal(t, int32(5000), v[ChVoltageRx])
	require.Equal(t, int32(12000), v[ChVoltage])
	require.Equal(t, int32(-100), v[ChCurrent])
	require.Equal(t, int32(51000000), v[ChRevolution])
	require.Equal(t, int32(2000000), v[ChHeight])
	require.Equal(t, int32(25000), v[ChA1])
	require.Equal(t, int32(7000), v[ChA2])
	require.Equal(t, int32(-409700), v[ChA3])
	require.Zero(t, v[ChCapacity])
	require.Equal(t, 250*time.Millisecond, TimeStep(frame))

	a1, a2, a3 := Modes(frame)
	require.Equal(t, 2, a1)
	require.Equal(t, 1, a2)
	require.Equal(t, 0, a3)
}

func TestDecodeTelegramUpdatesAnalogUnits(t *testing.T) {
	d, _ := newDriver(t)
	frame := telegram(t, map[int]byte{4: 0x10, 7: 0x20})

	channels := DefaultChannels()
	p, err := d.DecodeTelegram(frame, &channels)
	require.NoError(t, err)
	require.Len(t, p.Values, channelCount)
	require.Equal(t, "km/h", channels.Channels[ChA1].Unit)
	require.Equal(t, model.AnalogSpeed250, channels.Channels[ChA1].AnalogMode)
	require.Equal(t, "µs", channels.Channels[ChA2].Unit)
	require.Equal(t, model.AnalogImpulse, channels.Channels[ChA2].AnalogMode)
	require.Equal(t, "°C", channels.Channels[ChA3].Unit)
	require.Equal(t, model.AnalogTemperature, channels.Channels[ChA3].AnalogMode)
}

func TestAnalogModesPerInput(t *testing.T) {
	d, _ := newDriver(t)
	tests := []struct {
		name   string
		byte4  byte
		a2, a3 model.AnalogMode
		u2, u3 string
	}{
		{"millivolt and internal temperature", 0x60, model.AnalogMillivolt, model.AnalogInternalTemperature, "mV", "°C"},
		{"capacity and energy", 0xB0, model.AnalogCapacity, model.AnalogEnergy, "mAh", "Wmin"},
		{"impulse and millivolt", 0xD0, model.AnalogImpulse, model.AnalogMillivolt, "µs", "mV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channels := DefaultChannels()
			_, err := d.DecodeTelegram(telegram(t, map[int]byte{4: tt.byte4}), &channels)
			require.NoError(t, err)
			require.Equal(t, tt.a2, channels.Channels[ChA2].AnalogMode)
			require.Equal(t, tt.u2, channels.Channels[ChA2].Unit)
			require.Equal(t, tt.a3, channels.Channels[ChA3].AnalogMode)
			require.Equal(t, tt.u3, channels.Channels[ChA3].Unit)
		})
	}
}

func TestDecodeTelegramRejectsCorruption(t *testing.T) {
	d, _ := newDriver(t)
	frame := telegram(t, map[int]byte{8: 0x10})
	frame[8] ^= 0x01

	_, err := d.DecodeTelegram(frame, nil)
	require.ErrorIs(t, err, protocol.ErrChecksum)

	_, err = d.DecodeTelegram(frame[:20], nil)
	require.ErrorIs(t, err, protocol.ErrLength)
}

func TestBuildConfigCommand(t *testing.T) {
	b := setup.Gen1Runtime.New()
	require.NoError(t, b.SetInt(setup.FieldTimeInterval, 4))
	require.NoError(t, b.SetInt(setup.FieldModusA1, 2))
	require.NoError(t, b.SetInt(setup.FieldModusA2, 1))
	require.NoError(t, b.SetInt(setup.FieldModusA3, 2))
	require.NoError(t, b.SetInt(setup.FieldCurrentSensor, 1))
	raw, err := b.Encode()
	require.NoError(t, err)

	cmd, err := buildConfigCommand(b)
	require.NoError(t, err)
	require.Len(t, cmd, 15)
	require.Equal(t, []byte{0xC0, 0x03, 0x02}, cmd[:3])
	require.Equal(t, byte(4), cmd[3])
	require.Equal(t, raw[11], cmd[4])
	require.Equal(t, byte(1), cmd[8])
	require.Equal(t, byte(2), cmd[9])
	require.Equal(t, byte(0x21), cmd[13])
	require.Equal(t, checksum.Sum8(cmd[1:14]), cmd[14])
}

func TestBuildTelemetryCommand(t *testing.T) {
	b := setup.Gen1Telemetry.New()
	raw, err := b.Encode()
	require.NoError(t, err)

	cmd, err := buildTelemetryCommand(b)
	require.NoError(t, err)
	require.Len(t, cmd, 20)
	require.Equal(t, []byte{0xC0, 0x03, 0x05}, cmd[:3])
	require.Equal(t, raw[4:14], cmd[3:13])
	require.Equal(t, raw[14:19], cmd[13:18])
	require.Equal(t, raw[19]&0x1F, cmd[18])
	require.Equal(t, checksum.Sum8(cmd[1:19]), cmd[19])
}

func TestPollInterval(t *testing.T) {
	require.Equal(t, 250, PollIntervalMs(0))
	require.Equal(t, 1000, PollIntervalMs(4))
	require.Equal(t, 10000, PollIntervalMs(7))
	require.Equal(t, 10000, PollIntervalMs(42))
}

func TestReadConfiguration(t *testing.T) {
	d, tr := newDriver(t)
	tr.Reply(Commands.QueryState, []byte{StatusReady})
	tr.Reply(Commands.QueryConfig, configFrame(t, 300, 4, 2))

	b, err := d.ReadConfiguration(context.Background())
	require.NoError(t, err)
	require.Equal(t, 300, b.Int(setup.FieldMemoryUsed))
	require.Equal(t, 4, b.Int(setup.FieldTimeInterval))

	require.Equal(t, [][]byte{Commands.QueryState, Commands.QueryState, Commands.QueryConfig}, tr.Writes())
	require.Equal(t, 1, tr.Opens())
	require.Equal(t, 1, tr.Closes())
	require.False(t, tr.IsOpen())
}

func TestWriteConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		answer  byte
		wantErr error
	}{
		{name: "acknowledged", answer: StatusOK},
		{name: "rejected", answer: 'n', wantErr: protocol.ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, tr := newDriver(t)
			tr.Reply(Commands.QueryState, []byte{StatusReady})
			tr.Handle(func(cmd []byte) []byte {
				if len(cmd) == 15 && cmd[2] == 0x02 {
					return []byte{tt.answer}
				}
				return nil
			})

			err := d.WriteConfiguration(context.Background(), setup.Gen1Runtime.New())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestWriteConfigurationRejectsForeignLayout(t *testing.T) {
	d, tr := newDriver(t)
	require.Error(t, d.WriteConfiguration(context.Background(), setup.Gen1Telemetry.New()))
	require.Empty(t, tr.Writes())
}

func TestTelemetryConfigurationRoundTrip(t *testing.T) {
	d, tr := newDriver(t)
	frame, err := setup.Gen1Telemetry.New().Encode()
	require.NoError(t, err)
	tr.Reply(Commands.QueryState, []byte{StatusReady})
	tr.Reply(Commands.QueryTelemetryConfig, frame)
	tr.Handle(func(cmd []byte) []byte {
		if len(cmd) == 20 && cmd[2] == 0x05 {
			return []byte{StatusOK}
		}
		return nil
	})

	b, err := d.ReadTelemetryConfiguration(context.Background())
	require.NoError(t, err)
	require.Equal(t, 60, b.Int(setup.FieldAlarmCurrent))
	require.NoError(t, d.WriteTelemetryConfiguration(context.Background(), b))
}

func TestCheckDataReadyExhausted(t *testing.T) {
	d, tr := newDriver(t)
	require.NoError(t, tr.Open(context.Background()))
	tr.Reply(Commands.QueryState, []byte{StatusWaiting})

	require.NoError(t, d.CheckConnection(context.Background()))

	err := d.CheckDataReady(context.Background())
	require.ErrorIs(t, err, protocol.ErrNotReady)
	require.Equal(t, 21, tr.CountWrites(Commands.QueryState))
	require.Equal(t, driver.StateProbing, d.State())
}

func TestCheckConnectionTimesOut(t *testing.T) {
	d, tr := newDriver(t)
	require.NoError(t, tr.Open(context.Background()))

	err := d.CheckConnection(context.Background())
	require.ErrorIs(t, err, protocol.ErrNotReady)
	require.Equal(t, 50, tr.CountWrites(Commands.QueryState))
}

func TestLiveSnapshotResendsOnChecksumError(t *testing.T) {
	d, tr := newDriver(t)
	require.NoError(t, tr.Open(context.Background()))

	good := telegram(t, map[int]byte{8: 0xB0, 9: 0x04})
	bad := append([]byte(nil), good...)
	bad[9] ^= 0x80
	tr.Reply(Commands.LiveValues, bad, good)

	p, err := d.LiveSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(12000), p.Values[ChVoltage])
	require.Equal(t, 2, tr.CountWrites(Commands.LiveValues))
}

func TestLiveSnapshotGivesUpAfterSecondChecksumError(t *testing.T) {
	d, tr := newDriver(t)
	require.NoError(t, tr.Open(context.Background()))

	bad := telegram(t, nil)
	bad[3] ^= 0x01
	tr.Reply(Commands.LiveValues, bad)

	_, err := d.LiveSnapshot(context.Background())
	require.ErrorIs(t, err, protocol.ErrChecksum)
}

func TestBeginStreaming(t *testing.T) {
	d, tr := newDriver(t)
	require.NoError(t, tr.Open(context.Background()))
	tr.Reply(Commands.QueryState, []byte{StatusReady})
	tr.Reply(Commands.QueryConfig, configFrame(t, 0, 4, 3))
	tr.Reply(Commands.LiveValues, telegram(t, nil))

	plan, err := d.BeginStreaming(context.Background())
	require.NoError(t, err)
	require.Equal(t, time.Second, plan.PollInterval)
	require.Equal(t, model.AnalogSpeed450, plan.Channels.Channels[ChA1].AnalogMode)
	require.Equal(t, driver.StateStreaming, d.State())
	require.True(t, tr.IsOpen())

	require.NoError(t, d.EndStreaming(context.Background()))
	require.Equal(t, driver.StateReady, d.State())
}

func TestBeginStreamingWithoutLiveData(t *testing.T) {
	d, tr := newDriver(t)
	require.NoError(t, tr.Open(context.Background()))
	tr.Reply(Commands.QueryState, []byte{StatusReady})
	tr.Reply(Commands.QueryConfig, configFrame(t, 0, 4, 0))

	_, err := d.BeginStreaming(context.Background())
	require.ErrorIs(t, err, protocol.ErrNotReady)
	require.Equal(t, 5, tr.CountWrites(Commands.LiveValues))
}

func TestStartLoggingOpensAndCloses(t *testing.T) {
	d, tr := newDriver(t)

	require.NoError(t, d.StartLogging(context.Background()))
	require.NoError(t, d.StopLogging(context.Background()))

	require.Equal(t, [][]byte{Commands.StartLogging, Commands.StopLogging}, tr.Writes())
	require.Equal(t, 2, tr.Opens())
	require.False(t, tr.IsOpen())
}

func TestClearMemory(t *testing.T) {
	tests := []struct {
		name   string
		answer byte
		want   bool
	}{
		{name: "erased", answer: 'n', want: true},
		{name: "echoed ok", answer: StatusOK, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, tr := newDriver(t)
			tr.Reply(Commands.QueryState, []byte{StatusReady})
			tr.Reply(Commands.Delete, []byte{tt.answer})

			ok, err := d.ClearMemory(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
		})
	}
}

func recordTelegram(t *testing.T, set, n int) []byte {
	return telegram(t, map[int]byte{
		0: 0xFA,
		5: byte((set - 1) * 8),
		8: byte(n), 9: 0x04,
		10: 0x10, 11: 0x27, // 10 A
	})
}

func TestDownloadMemoryGroupsRecordSets(t *testing.T) {
	d, tr := newDriver(t)
	tr.Reply(Commands.QueryState, []byte{StatusReady})
	tr.Reply(Commands.QueryConfig, configFrame(t, 14, 3, 0))

	var stored [][]byte
	for i := 0; i < 6; i++ {
		stored = append(stored, recordTelegram(t, 1, i))
	}
	for i := 0; i < 3; i++ {
		stored = append(stored, recordTelegram(t, 2, i))
	}
	for i := 0; i < 5; i++ {
		stored = append(stored, recordTelegram(t, 3, i))
	}

	corrupted := append([]byte(nil), stored[3]...)
	corrupted[8] ^= 0x01
	sent := append([][]byte(nil), stored...)
	sent[3] = corrupted
	tr.Reply(Commands.ReadData, sent...)
	tr.Reply(Commands.Repeat, stored[3])

	var last driver.DownloadProgress
	dump, err := d.DownloadMemory(context.Background(), nil, func(p driver.DownloadProgress) { last = p })
	require.NoError(t, err)

	require.Equal(t, 14, dump.Telegrams)
	require.Equal(t, 2, dump.Blocks)
	require.Equal(t, 1, dump.ShortBlocks)
	require.Equal(t, 1, dump.ReceiveErrors)
	require.False(t, dump.Stopped)
	require.Len(t, dump.Buffer, 2+6*TelegramLength+2+5*TelegramLength)
	require.Equal(t, 1, tr.CountWrites(Commands.Reset))
	require.Equal(t, 1, tr.CountWrites(Commands.Repeat))
	require.Equal(t, 100.0, last.Percent())
	require.False(t, tr.IsOpen())

	g := gatherer.New(model.GenerationUniLog, d, DefaultChannels(), calculation.DefaultParams(), zap.NewNop())
	var sessions []*model.Session
	report, err := g.Gather(context.Background(), dump.Buffer, func(s *model.Session) error {
		sessions = append(sessions, s)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Sessions)
	require.Len(t, sessions, 2)
	require.Equal(t, 4, sessions[0].PointCount)
	require.Equal(t, 3, sessions[1].PointCount)
	require.Equal(t, int64(250), sessions[0].Points[1].ElapsedMs)
	require.True(t, sessions[0].Displayable[ChPower])
}

func TestDownloadMemoryStopsOnRequest(t *testing.T) {
	d, tr := newDriver(t)
	tr.Reply(Commands.QueryState, []byte{StatusReady})
	tr.Reply(Commands.QueryConfig, configFrame(t, 10, 3, 0))
	tr.Reply(Commands.ReadData, recordTelegram(t, 1, 0))

	stop := make(chan struct{})
	close(stop)

	dump, err := d.DownloadMemory(context.Background(), stop, nil)
	require.NoError(t, err)
	require.True(t, dump.Stopped)
	require.Equal(t, 1, dump.Telegrams)
	require.Zero(t, dump.Blocks)
	require.Empty(t, dump.Buffer)
}

func TestDownloadMemoryFailsWhenRepeatFails(t *testing.T) {
	d, tr := newDriver(t)
	tr.Reply(Commands.QueryState, []byte{StatusReady})
	tr.Reply(Commands.QueryConfig, configFrame(t, 2, 3, 0))

	_, err := d.DownloadMemory(context.Background(), nil, nil)
	require.Error(t, err)
	require.True(t, protocol.IsTimeout(err))
	require.False(t, tr.IsOpen())
}

func TestWritesFailAsIOErrors(t *testing.T) {
	d, tr := newDriver(t)
	require.NoError(t, tr.Open(context.Background()))
	tr.FailWrites(errors.New("cable pulled"))

	err := d.CheckConnection(context.Background())
	require.ErrorIs(t, err, protocol.ErrIO)
}
