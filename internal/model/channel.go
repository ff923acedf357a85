// internal/model/channel.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ChannelKind separates values read from the device from values computed
// afterwards
type ChannelKind string

const (
	ChannelMeasured ChannelKind = "measured"
	ChannelDerived  ChannelKind = "derived"
)

// Derivation names the formula of a derived channel. DependsOn lists the
// input channels in the order the formula expects them.
type Derivation string

const (
	DeriveCapacity       Derivation = "capacity"         // current
	DerivePower          Derivation = "power"            // voltage, current
	DeriveEnergy         Derivation = "energy"           // voltage, current
	DeriveVoltagePerCell Derivation = "voltage_per_cell" // voltage
	DeriveCellSpread     Derivation = "cell_spread"      // cell voltages
	DeriveEfficiency     Derivation = "efficiency"       // revolution, power, current
	DeriveSlope          Derivation = "slope"            // height
)

// AnalogMode selects the scaling of an analog input (A1..A3)
type AnalogMode int

const (
	AnalogTemperature AnalogMode = 0
	AnalogMillivolt   AnalogMode = 1
	AnalogSpeed250    AnalogMode = 2
	AnalogSpeed450    AnalogMode = 3
	AnalogPT1000      AnalogMode = 4

	// UniLog A2 and A3 inputs
	AnalogImpulse             AnalogMode = 5
	AnalogCapacity            AnalogMode = 6
	AnalogInternalTemperature AnalogMode = 7
	AnalogEnergy              AnalogMode = 8
)

// Unit returns the display unit of the mode
func (m AnalogMode) Unit() string {
	switch m {
	case AnalogTemperature, AnalogPT1000, AnalogInternalTemperature:
		return "°C"
	case AnalogMillivolt:
		return "mV"
	case AnalogSpeed250, AnalogSpeed450:
		return "km/h"
	case AnalogImpulse:
		return "µs"
	case AnalogCapacity:
		return "mAh"
	case AnalogEnergy:
		return "Wmin"
	default:
		return ""
	}
}

func (m AnalogMode) String() string {
	switch m {
	case AnalogTemperature:
		return "temperature"
	case AnalogMillivolt:
		return "millivolt"
	case AnalogSpeed250:
		return "speed250"
	case AnalogSpeed450:
		return "speed450"
	case AnalogPT1000:
		return "pt1000"
	case AnalogImpulse:
		return "impulse"
	case AnalogCapacity:
		return "capacity"
	case AnalogInternalTemperature:
		return "internal_temperature"
	case AnalogEnergy:
		return "energy"
	default:
		return fmt.Sprintf("mode%d", int(m))
	}
}

// Channel describes one column of a session
type Channel struct {
	Name       string      `json:"name"`
	Symbol     string      `json:"symbol"`
	Unit       string      `json:"unit"`
	Factor     float64     `json:"factor"`
	Kind       ChannelKind `json:"kind"`
	Derivation Derivation  `json:"derivation,omitempty"`
	DependsOn  []int       `json:"depends_on,omitempty"`
	Active     bool        `json:"active"`
	Analog     bool        `json:"analog,omitempty"`
	AnalogMode AnalogMode  `json:"analog_mode,omitempty"`
}

// IsDerived reports whether the channel is computed by the derived pass
func (c Channel) IsDerived() bool { return c.Kind == ChannelDerived }

// ChannelConfig is the ordered channel layout of a session
type ChannelConfig struct {
	Channels []Channel `json:"channels"`
}

// Len returns the number of channels
func (c ChannelConfig) Len() int { return len(c.Channels) }

// Index returns the position of the named channel or -1
func (c ChannelConfig) Index(name string) int {
	for i, ch := range c.Channels {
		if ch.Name == name {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy
func (c ChannelConfig) Clone() ChannelConfig {
	out := ChannelConfig{Channels: make([]Channel, len(c.Channels))}
	for i, ch := range c.Channels {
		ch.DependsOn = append([]int(nil), ch.DependsOn...)
		out.Channels[i] = ch
	}
	return out
}

// SetAnalogMode updates an analog channel's mode and unit
func (c *ChannelConfig) SetAnalogMode(i int, mode AnalogMode) {
	if i < 0 || i >= len(c.Channels) || !c.Channels[i].Analog {
		return
	}
	c.Channels[i].AnalogMode = mode
	c.Channels[i].Unit = mode.Unit()
}

func (c *ChannelConfig) Scan(value interface{}) error {
	if value == nil {
		*c = ChannelConfig{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected channel config type %T", value)
	}
	return json.Unmarshal(bytes, c)
}

func (c ChannelConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}
