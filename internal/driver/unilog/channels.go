// internal/driver/unilog/channels.go
package unilog

import (
	"unilog-service/internal/model"
)

// Channel indexes of a UniLog sample point
const (
	ChVoltageRx = iota
	ChVoltage
	ChCurrent
	ChCapacity
	ChPower
	ChEnergy
	ChVoltagePerCell
	ChRevolution
	ChEfficiency
	ChHeight
	ChSlope
	ChA1
	ChA2
	ChA3

	channelCount
)

// DefaultChannels returns the UniLog channel layout
func DefaultChannels() model.ChannelConfig {
	measured := func(name, symbol, unit string) model.Channel {
		return model.Channel{Name: name, Symbol: symbol, Unit: unit, Factor: 1, Kind: model.ChannelMeasured, Active: true}
	}
	derived := func(name, symbol, unit string, d model.Derivation, deps ...int) model.Channel {
		return model.Channel{Name: name, Symbol: symbol, Unit: unit, Factor: 1, Kind: model.ChannelDerived, Derivation: d, DependsOn: deps, Active: true}
	}
	analog := func(name, symbol string) model.Channel {
		ch := measured(name, symbol, model.AnalogTemperature.Unit())
		ch.Analog = true
		return ch
	}

	return model.ChannelConfig{Channels: []model.Channel{
		ChVoltageRx:      measured("VoltageReceiver", "U_Rx", "V"),
		ChVoltage:        measured("Voltage", "U", "V"),
		ChCurrent:        measured("Current", "I", "A"),
		ChCapacity:       derived("Capacity", "C", "mAh", model.DeriveCapacity, ChCurrent),
		ChPower:          derived("Power", "P", "W", model.DerivePower, ChVoltage, ChCurrent),
		ChEnergy:         derived("Energy", "E", "Wh", model.DeriveEnergy, ChVoltage, ChCurrent),
		ChVoltagePerCell: derived("VoltagePerCell", "U_cell", "V", model.DeriveVoltagePerCell, ChVoltage),
		ChRevolution:     measured("Revolution", "rpm", "1/min"),
		ChEfficiency:     derived("Efficiency", "eta", "%", model.DeriveEfficiency, ChRevolution, ChPower, ChCurrent),
		ChHeight:         measured("Height", "h", "m"),
		ChSlope:          derived("Slope", "v_z", "m/s", model.DeriveSlope, ChHeight),
		ChA1:             analog("A1", "A1"),
		ChA2:             analog("A2", "A2"),
		ChA3:             analog("A3", "A3"),
	}}
}

// Device mode numbers of each analog input. A1 carries the sensor type, A2
// and A3 have their own tables.
var (
	a1Modes = []model.AnalogMode{model.AnalogTemperature, model.AnalogMillivolt, model.AnalogSpeed250, model.AnalogSpeed450}
	a2Modes = []model.AnalogMode{model.AnalogTemperature, model.AnalogImpulse, model.AnalogMillivolt, model.AnalogCapacity}
	a3Modes = []model.AnalogMode{model.AnalogTemperature, model.AnalogInternalTemperature, model.AnalogEnergy, model.AnalogMillivolt}
)

func setAnalogMode(cfg *model.ChannelConfig, ch, mode int) {
	modes := a1Modes
	switch ch {
	case ChA2:
		modes = a2Modes
	case ChA3:
		modes = a3Modes
	}
	if mode < 0 || mode >= len(modes) {
		return
	}
	cfg.SetAnalogMode(ch, modes[mode])
}
