// internal/driver/unilog/command.go
package unilog

import (
	"fmt"

	"unilog-service/internal/checksum"
	"unilog-service/internal/setup"
)

// Commands contains the UniLog serial command set
var Commands = struct {
	QueryState           []byte
	Reset                []byte
	ReadData             []byte
	Repeat               []byte
	LiveValues           []byte
	StartLogging         []byte
	StopLogging          []byte
	Delete               []byte
	QueryConfig          []byte
	QueryTelemetryConfig []byte
}{
	QueryState:   []byte{0x54}, // 'T'
	Reset:        []byte{0x72}, // 'r' restart telegram transfer from the beginning
	ReadData:     []byte{0x6C}, // 'l' one stored telegram
	Repeat:       []byte{0x77}, // 'w' resend the last telegram
	LiveValues:   []byte{0x76}, // 'v'
	StartLogging: []byte{0x53}, // 'S'
	StopLogging:  []byte{0x73}, // 's'

	Delete:               []byte{0xC0, 0x03, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x06},
	QueryConfig:          []byte{0xC0, 0x03, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04},
	QueryTelemetryConfig: []byte{0xC0, 0x03, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x07},
}

// Status bytes answered to QueryState and to set commands
const (
	StatusWaiting byte = 0x57 // 'W'
	StatusReady   byte = 0x46 // 'F'
	StatusOK      byte = 0x6A // 'j'
)

// TelegramLength is the size of live frames, stored telegrams and
// configuration answers
const TelegramLength = 24

const (
	setConfigLength    = 15
	setTelemetryLength = 20
)

// timeIntervalMs maps the time_interval index to the sample period
var timeIntervalMs = []int{250, 250, 250, 500, 1000, 2000, 5000, 10000}

// PollIntervalMs returns the sample period for a time_interval index
func PollIntervalMs(index int) int {
	if index < 0 || index >= len(timeIntervalMs) {
		return timeIntervalMs[len(timeIntervalMs)-1]
	}
	return timeIntervalMs[index]
}

// buildConfigCommand packs the writable runtime settings into the 15 byte
// set-configuration command
func buildConfigCommand(b *setup.Block) ([]byte, error) {
	raw, err := b.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}

	cmd := make([]byte, setConfigLength)
	cmd[0], cmd[1], cmd[2] = 0xC0, 0x03, 0x02
	cmd[3] = raw[10]  // time interval
	cmd[4] = raw[11]  // pole flag, blade or pole count
	cmd[5] = raw[12]  // auto start current
	cmd[6] = raw[13]  // auto start rx
	cmd[7] = raw[14]  // auto start time
	cmd[8] = raw[15]  // current sensor
	cmd[9] = raw[18]  // a1 mode
	cmd[10] = raw[19] // limiter flag, limiter high byte
	cmd[11] = raw[20] // limiter low byte
	cmd[12] = raw[21] // gear ratio
	cmd[13] = (raw[5]&0x0F)<<4 | raw[4]&0x0F
	checksum.SealSum8(cmd)
	return cmd, nil
}

// buildTelemetryCommand packs alarms, addresses and enable bits into the 20
// byte set-telemetry command
func buildTelemetryCommand(b *setup.Block) ([]byte, error) {
	raw, err := b.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode telemetry configuration: %w", err)
	}

	cmd := make([]byte, setTelemetryLength)
	cmd[0], cmd[1], cmd[2] = 0xC0, 0x03, 0x05
	copy(cmd[3:13], raw[4:14])  // five little endian alarm values
	copy(cmd[13:18], raw[14:19]) // five telemetry addresses
	cmd[18] = raw[19] & 0x1F
	checksum.SealSum8(cmd)
	return cmd, nil
}
