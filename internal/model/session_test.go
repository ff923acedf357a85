package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func twoChannels() ChannelConfig {
	return ChannelConfig{Channels: []Channel{
		{Name: "Voltage", Unit: "V", Kind: ChannelMeasured, Active: true},
		{Name: "Power", Unit: "W", Kind: ChannelDerived, DependsOn: []int{0}},
	}}
}

func TestSessionAppendChecksArity(t *testing.T) {
	s := NewSession(GenerationUniLog, SessionSourceLive, twoChannels())
	require.NoError(t, s.Append(&SamplePoint{Values: []int32{12000, 0}}))
	require.NoError(t, s.Append(&SamplePoint{Values: []int32{11900, 0}}))
	require.Error(t, s.Append(&SamplePoint{Values: []int32{1}}))

	require.Equal(t, 2, s.PointCount)
	require.Equal(t, 1, s.Points[1].Index)
	require.Equal(t, []int32{12000, 11900}, s.Series(0))
	require.Equal(t, []bool{true, false}, s.Displayable)
}

func TestSessionFinalizeThenAppendFails(t *testing.T) {
	s := NewSession(GenerationUniLog2, SessionSourceBatch, twoChannels())
	s.Finalize()
	require.Equal(t, SessionStateFinalized, s.State)
	require.NotNil(t, s.FinishedAt)
	require.Error(t, s.Append(&SamplePoint{Values: []int32{1, 2}}))

	s.Abort()
	require.Equal(t, SessionStateFinalized, s.State)
}

func TestSessionAbortDiscardsPoints(t *testing.T) {
	s := NewSession(GenerationUniLog, SessionSourceLive, twoChannels())
	require.NoError(t, s.Append(&SamplePoint{Values: []int32{1, 2}}))
	s.Abort()
	require.Equal(t, SessionStateAborted, s.State)
	require.Empty(t, s.Points)
	require.Zero(t, s.PointCount)
}

func TestChannelConfigCloneIsDeep(t *testing.T) {
	cfg := twoChannels()
	clone := cfg.Clone()
	clone.Channels[1].DependsOn[0] = 7
	require.Equal(t, 0, cfg.Channels[1].DependsOn[0])
	require.Equal(t, 1, cfg.Index("Power"))
	require.Equal(t, -1, cfg.Index("Height"))
}

func TestSetAnalogModeOnlyTouchesAnalogChannels(t *testing.T) {
	cfg := ChannelConfig{Channels: []Channel{
		{Name: "A1", Analog: true, Unit: "°C"},
		{Name: "Voltage", Unit: "V"},
	}}
	cfg.SetAnalogMode(0, AnalogSpeed250)
	cfg.SetAnalogMode(1, AnalogMillivolt)
	require.Equal(t, "km/h", cfg.Channels[0].Unit)
	require.Equal(t, AnalogSpeed250, cfg.Channels[0].AnalogMode)
	require.Equal(t, "V", cfg.Channels[1].Unit)
}
