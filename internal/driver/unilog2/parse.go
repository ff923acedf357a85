// internal/driver/unilog2/parse.go
package unilog2

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"unilog-service/internal/model"
)

const number = `([-+]?\d+(?:\.\d+)?)`

// lineRule maps the numbers of one display line onto channels
type lineRule struct {
	re       *regexp.Regexp
	channels []int
}

var lineRules = []lineRule{
	{regexp.MustCompile(`^` + number + `A\s+` + number + `m$`), []int{ChCurrent, ChHeight}},
	{regexp.MustCompile(`^` + number + `V\s+` + number + `m/s$`), []int{ChVoltage, ChClimb}},
	{regexp.MustCompile(`^` + number + `W\s+` + number + `rpm$`), []int{ChPower, ChRevolution}},
	{regexp.MustCompile(`^` + number + `mAh\s+` + number + `VRx$`), []int{ChCapacity, ChVoltageRx}},
	{regexp.MustCompile(`^` + number + `Wmin$`), []int{ChEnergy}},
	{regexp.MustCompile(`^` + number + `us\s*->\s*` + number + `us$`), []int{ChServoIn, ChServoOut}},
	{regexp.MustCompile(`^` + number + `V1\s+` + number + `V2$`), []int{ChCellVoltage1, ChCellVoltage2}},
	{regexp.MustCompile(`^` + number + `V3\s+` + number + `V4$`), []int{ChCellVoltage3, ChCellVoltage4}},
	{regexp.MustCompile(`^` + number + `V5\s+` + number + `V6$`), []int{ChCellVoltage5, ChCellVoltage6}},
	{regexp.MustCompile(`^Druck\s+` + number + `hPa$`), []int{ChAirPressure}},
	{regexp.MustCompile("^intern\\s+" + number + "`C$"), []int{ChInternTemperature}},
}

var analogLine = regexp.MustCompile("^A([123])\\s+" + number + "\\s*(mV|`C|km/h)$")

var analogChannels = map[string]int{"1": ChA1, "2": ChA2, "3": ChA3}

var analogUnits = map[string]model.AnalogMode{
	"mV":   model.AnalogMillivolt,
	"`C":   model.AnalogTemperature,
	"km/h": model.AnalogSpeed250,
}

// PageKind identifies one of the three live text pages
type PageKind int

const (
	PageUnknown PageKind = iota
	PageDrive
	PageCells
	PageSensors
)

// Page is a parsed live text page
type Page struct {
	Kind   PageKind
	Values map[int]int32
	Modes  map[int]model.AnalogMode
}

// Classify returns the kind of a live text page
func Classify(text string) PageKind {
	switch {
	case strings.Contains(text, "rpm") && strings.Contains(text, "VRx"):
		return PageDrive
	case strings.Contains(text, "V1") && strings.Contains(text, "V6"):
		return PageCells
	case strings.Contains(text, "hPa") && strings.Contains(text, "intern"):
		return PageSensors
	}
	return PageUnknown
}

// PageText converts raw page bytes into text lines. Control bytes other than
// line breaks are dropped, the column marker '|' is removed.
func PageText(raw []byte) string {
	var sb strings.Builder
	for _, b := range raw {
		switch {
		case b == '\r' || b == '\n':
			sb.WriteByte('\n')
		case b == '|':
		case b < 0x20 || b > 0x7E:
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// ParsePage reads every known display line of text. Lines that do not match
// are ignored.
func ParsePage(text string) Page {
	page := Page{
		Kind:   Classify(text),
		Values: make(map[int]int32),
		Modes:  make(map[int]model.AnalogMode),
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := analogLine.FindStringSubmatch(line); m != nil {
			ch := analogChannels[m[1]]
			if v, ok := scaled(m[2]); ok {
				page.Values[ch] = v
				page.Modes[ch] = analogUnits[m[3]]
			}
			continue
		}
		for _, rule := range lineRules {
			m := rule.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			for k, ch := range rule.channels {
				if v, ok := scaled(m[k+1]); ok {
					page.Values[ch] = v
				}
			}
			break
		}
	}
	return page
}

// Apply writes the page values into values and the analog modes into
// channels
func (p Page) Apply(values []int32, channels *model.ChannelConfig) {
	for ch, v := range p.Values {
		if ch < len(values) {
			values[ch] = v
		}
	}
	if channels == nil {
		return
	}
	for ch, mode := range p.Modes {
		channels.SetAnalogMode(ch, mode)
	}
}

// scaled parses a display number into the x1000 convention
func scaled(s string) (int32, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	v := math.Round(f * 1000)
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, false
	}
	return int32(v), true
}
