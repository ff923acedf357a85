// internal/protocol/connection.go
package protocol

import "time"

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`
}

// TCPConfig represents a serial-over-TCP bridge (ser2net, RFC2217 raw mode)
type TCPConfig struct {
	Host        string        `json:"host"`
	Port        int           `json:"port"`
	KeepAlive   bool          `json:"keep_alive"`
	DialTimeout time.Duration `json:"dial_timeout"`
}

// DefaultSerialConfig returns the UniLog line settings: 8N1 at 115200 baud.
func DefaultSerialConfig(port string) *SerialConfig {
	return &SerialConfig{
		Port:     port,
		BaudRate: 115200,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  2 * time.Second,
	}
}
