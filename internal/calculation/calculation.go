// Package calculation fills derived channels of a completed session from the
// channels the logger measured directly.
package calculation

import (
	"fmt"
	"math"
	"time"

	"unilog-service/internal/model"
)

// Params holds the user settings the derived channels depend on
type Params struct {
	// Cells is the number of battery cells for the voltage per cell channel
	Cells int `json:"cells"`
	// PropN100W is the propeller speed in 1/min that needs 100 W shaft power
	PropN100W int `json:"prop_n100w"`
	// RPMFactor scales the measured revolution, e.g. for a gear box
	RPMFactor float64 `json:"rpm_factor"`
	// Motors divides the revolution for multi motor setups
	Motors float64 `json:"motors"`
	// RegressionInterval is the window of the slope regression
	RegressionInterval time.Duration `json:"regression_interval"`
	// TimeStep is used when the session carries no timestamps
	TimeStep time.Duration `json:"time_step"`
}

// DefaultParams returns the settings the loggers ship with
func DefaultParams() Params {
	return Params{
		Cells:              4,
		PropN100W:          10000,
		RPMFactor:          1,
		Motors:             1,
		RegressionInterval: 4 * time.Second,
		TimeStep:           time.Second,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Cells <= 0 {
		p.Cells = d.Cells
	}
	if p.PropN100W <= 0 {
		p.PropN100W = d.PropN100W
	}
	if p.RPMFactor <= 0 {
		p.RPMFactor = d.RPMFactor
	}
	if p.Motors <= 0 {
		p.Motors = d.Motors
	}
	if p.RegressionInterval <= 0 {
		p.RegressionInterval = d.RegressionInterval
	}
	if p.TimeStep <= 0 {
		p.TimeStep = d.TimeStep
	}
	return p
}

// minDeps is the number of inputs each formula reads
var minDeps = map[model.Derivation]int{
	model.DeriveCapacity:       1,
	model.DerivePower:          2,
	model.DeriveEnergy:         2,
	model.DeriveVoltagePerCell: 1,
	model.DeriveCellSpread:     1,
	model.DeriveEfficiency:     3,
	model.DeriveSlope:          1,
}

// Pass computes every derived channel that is not displayable yet, in
// dependency order. A channel becomes displayable once all of its inputs are.
// Running Pass again leaves displayable channels untouched and recomputes the
// others to the same values.
func Pass(s *model.Session, params Params) error {
	params = params.withDefaults()

	order, err := Order(s.Channels)
	if err != nil {
		return err
	}
	if len(s.Displayable) != s.Channels.Len() {
		return fmt.Errorf("displayable flags %d do not match %d channels", len(s.Displayable), s.Channels.Len())
	}

	step := averageTimeStep(s.Points, params.TimeStep)
	for _, i := range order {
		if s.Displayable[i] {
			continue
		}
		ch := s.Channels.Channels[i]
		if err := derive(s, i, ch, params, step); err != nil {
			return fmt.Errorf("failed to derive %s: %w", ch.Name, err)
		}
		if !ch.Active {
			continue
		}
		ready := true
		for _, dep := range ch.DependsOn {
			if !s.Displayable[dep] {
				ready = false
				break
			}
		}
		s.Displayable[i] = ready
	}
	return nil
}

// Order returns the derived channel indexes sorted so that every channel
// follows its derived inputs
func Order(cfg model.ChannelConfig) ([]int, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make([]int, cfg.Len())
	order := make([]int, 0, cfg.Len())

	var visit func(i int) error
	visit = func(i int) error {
		switch marks[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("channel %s has a dependency cycle", cfg.Channels[i].Name)
		}
		marks[i] = visiting
		for _, dep := range cfg.Channels[i].DependsOn {
			if dep < 0 || dep >= cfg.Len() || dep == i {
				return fmt.Errorf("channel %s depends on invalid channel %d", cfg.Channels[i].Name, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[i] = done
		if cfg.Channels[i].IsDerived() {
			order = append(order, i)
		}
		return nil
	}

	for i := range cfg.Channels {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// averageTimeStep returns the mean sample distance in milliseconds
func averageTimeStep(points []*model.SamplePoint, fallback time.Duration) float64 {
	n := len(points)
	if n > 1 {
		span := points[n-1].ElapsedMs - points[0].ElapsedMs
		if span > 0 {
			return float64(span) / float64(n-1)
		}
	}
	return float64(fallback.Milliseconds())
}

func derive(s *model.Session, i int, ch model.Channel, p Params, stepMs float64) error {
	want, ok := minDeps[ch.Derivation]
	if !ok {
		return fmt.Errorf("unknown derivation %q", ch.Derivation)
	}
	if len(ch.DependsOn) < want {
		return fmt.Errorf("derivation %s needs %d inputs, got %d", ch.Derivation, want, len(ch.DependsOn))
	}
	in := func(k, row int) float64 {
		return float64(s.Points[row].Value(ch.DependsOn[k]))
	}
	set := func(row int, v float64) {
		s.Points[row].Values[i] = toInt32(v)
	}

	switch ch.Derivation {
	case model.DeriveCapacity:
		capacity := 0.0
		for row := range s.Points {
			capacity += in(0, row) * stepMs / 3600
			set(row, capacity)
		}

	case model.DerivePower:
		for row := range s.Points {
			set(row, in(0, row)*in(1, row)/1000)
		}

	case model.DeriveEnergy:
		energy := 0.0
		for row := range s.Points {
			energy += (in(0, row) / 1000) * (in(1, row) / 1000) * (stepMs / 3600)
			set(row, energy)
		}

	case model.DeriveVoltagePerCell:
		for row := range s.Points {
			set(row, in(0, row)/float64(p.Cells))
		}

	case model.DeriveCellSpread:
		for row := range s.Points {
			set(row, cellSpread(s.Points[row], ch.DependsOn))
		}

	case model.DeriveEfficiency:
		previous := 0.0
		for row := range s.Points {
			eta := Efficiency(row, in(0, row), in(1, row), in(2, row), previous, p)
			set(row, eta*1000)
			previous = eta
		}

	case model.DeriveSlope:
		series := make([]float64, len(s.Points))
		for row := range s.Points {
			series[row] = in(0, row)
		}
		for row, v := range Slope(series, stepMs, p.RegressionInterval) {
			set(row, v)
		}
	}
	return nil
}

// cellSpread returns the spread between the highest and lowest connected cell
// in mV x1000. Cells reading zero or less are not connected.
func cellSpread(pt *model.SamplePoint, cells []int) float64 {
	lowest, highest := int32(math.MaxInt32), int32(math.MinInt32)
	for _, c := range cells {
		v := pt.Value(c)
		if v <= 0 {
			continue
		}
		if v > highest {
			highest = v
		}
		if v < lowest {
			lowest = v
		}
	}
	if highest == math.MinInt32 {
		return 0
	}
	return float64(highest-lowest) * 1000
}

// MotorPower estimates the shaft power in W x1000 from the revolution using
// the propeller's speed at 100 W
func MotorPower(rpm float64, p Params) float64 {
	return math.Pow((rpm*p.RPMFactor/p.Motors)/1000*4.64/float64(p.PropN100W), 3) * 1000
}

// Efficiency returns the motor efficiency in percent for one sample. The
// first two samples and samples below 100 1/min or 3 A yield 0. Electrical
// power at or below the shaft power yields 0, a ratio above 100 % keeps the
// previous value.
func Efficiency(row int, rpm, power, current, previous float64, p Params) float64 {
	p = p.withDefaults()
	if row <= 1 || rpm <= 100000 || current <= 3000 {
		return 0
	}
	motor := MotorPower(rpm, p)
	if power <= motor {
		return 0
	}
	eta := motor * 100 / power
	if eta > 100 {
		return previous
	}
	if eta < 0 {
		return 0
	}
	return eta
}

// Slope fits a least squares line through the samples of a window centred on
// each point and returns the gradient per second. Series shorter than the
// window produce zeros.
func Slope(series []float64, stepMs float64, interval time.Duration) []float64 {
	out := make([]float64, len(series))
	if stepMs <= 0 {
		return out
	}
	steps := int(float64(interval.Milliseconds()) / stepMs)
	if steps < 4 {
		steps = 4
	}
	if len(series) <= steps {
		return out
	}

	half := steps / 2
	dt := stepMs / 1000
	for i := range series {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo, hi = 0, steps
		}
		if hi >= len(series) {
			lo, hi = len(series)-1-steps, len(series)-1
		}
		n := float64(hi - lo + 1)
		var sumX, sumY float64
		for k := lo; k <= hi; k++ {
			sumX += float64(k) * dt
			sumY += series[k]
		}
		meanX, meanY := sumX/n, sumY/n
		var ssXY, ssXX float64
		for k := lo; k <= hi; k++ {
			dx := float64(k)*dt - meanX
			ssXY += dx * (series[k] - meanY)
			ssXX += dx * dx
		}
		if ssXX > 0 {
			out[i] = ssXY / ssXX
		}
	}
	return out
}

func toInt32(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}
