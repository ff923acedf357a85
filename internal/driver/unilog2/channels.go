// internal/driver/unilog2/channels.go
package unilog2

import (
	"unilog-service/internal/model"
)

// Channel indexes of a UniLog 2 sample point
const (
	ChVoltageRx = iota
	ChVoltage
	ChCurrent
	ChCapacity
	ChPower
	ChEnergy
	ChCellBalance
	ChCellVoltage1
	ChCellVoltage2
	ChCellVoltage3
	ChCellVoltage4
	ChCellVoltage5
	ChCellVoltage6
	ChRevolution
	ChEfficiency
	ChHeight
	ChClimb
	ChA1
	ChA2
	ChA3
	ChAirPressure
	ChInternTemperature
	ChServoIn
	ChServoOut

	channelCount
)

// DefaultChannels returns the UniLog 2 channel layout. The logger reports
// capacity, power and energy itself; only cell balance and efficiency are
// derived.
func DefaultChannels() model.ChannelConfig {
	measured := func(name, symbol, unit string) model.Channel {
		return model.Channel{Name: name, Symbol: symbol, Unit: unit, Factor: 1, Kind: model.ChannelMeasured, Active: true}
	}
	analog := func(name string) model.Channel {
		ch := measured(name, name, model.AnalogMillivolt.Unit())
		ch.Analog = true
		ch.AnalogMode = model.AnalogMillivolt
		return ch
	}

	return model.ChannelConfig{Channels: []model.Channel{
		ChVoltageRx: measured("VoltageReceiver", "U_Rx", "V"),
		ChVoltage:   measured("Voltage", "U", "V"),
		ChCurrent:   measured("Current", "I", "A"),
		ChCapacity:  measured("Capacity", "C", "mAh"),
		ChPower:     measured("Power", "P", "W"),
		ChEnergy:    measured("Energy", "E", "Wmin"),
		ChCellBalance: {
			Name: "CellBalance", Symbol: "delta_U", Unit: "mV", Factor: 1, Kind: model.ChannelDerived,
			Derivation: model.DeriveCellSpread, Active: true,
			DependsOn: []int{ChCellVoltage1, ChCellVoltage2, ChCellVoltage3, ChCellVoltage4, ChCellVoltage5, ChCellVoltage6},
		},
		ChCellVoltage1: measured("CellVoltage1", "U1", "V"),
		ChCellVoltage2: measured("CellVoltage2", "U2", "V"),
		ChCellVoltage3: measured("CellVoltage3", "U3", "V"),
		ChCellVoltage4: measured("CellVoltage4", "U4", "V"),
		ChCellVoltage5: measured("CellVoltage5", "U5", "V"),
		ChCellVoltage6: measured("CellVoltage6", "U6", "V"),
		ChRevolution:   measured("Revolution", "rpm", "1/min"),
		ChEfficiency: {
			Name: "Efficiency", Symbol: "eta", Unit: "%", Factor: 1, Kind: model.ChannelDerived,
			Derivation: model.DeriveEfficiency, Active: true,
			DependsOn: []int{ChRevolution, ChPower, ChCurrent},
		},
		ChHeight:            measured("Height", "h", "m"),
		ChClimb:             measured("Climb", "v_z", "m/s"),
		ChA1:                analog("A1"),
		ChA2:                analog("A2"),
		ChA3:                analog("A3"),
		ChAirPressure:       measured("AirPressure", "p", "hPa"),
		ChInternTemperature: measured("InternTemperature", "T_int", "°C"),
		ChServoIn:           measured("ServoImpulseIn", "t_in", "µs"),
		ChServoOut:          measured("ServoImpulseOut", "t_out", "µs"),
	}}
}
