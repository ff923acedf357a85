// pkg/driver/types.go
package driver

import (
	"time"

	"unilog-service/internal/model"
	"unilog-service/internal/setup"
)

// State is the connection and readiness state of a logger
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateProbing      State = "PROBING"
	StateDraining     State = "DRAINING"
	StateReady        State = "READY"
	StateStreaming    State = "STREAMING"
)

// StreamPlan is the outcome of a streaming handshake
type StreamPlan struct {
	PollInterval time.Duration       `json:"poll_interval"`
	Channels     model.ChannelConfig `json:"channels"`
	// Config is the configuration block read during the handshake, if any
	Config *setup.Block `json:"config,omitempty"`
}

// Timing holds the retry bounds and delays of the readiness checks
type Timing struct {
	ConnectAttempts int           `json:"connect_attempts"`
	ReadyAttempts   int           `json:"ready_attempts"`
	ProbeDelay      time.Duration `json:"probe_delay"`
	StatusTimeout   time.Duration `json:"status_timeout"`
	FrameTimeout    time.Duration `json:"frame_timeout"`
	SettleDelay     time.Duration `json:"settle_delay"`
	DrainRounds     int           `json:"drain_rounds"`
	QuietPeriod     time.Duration `json:"quiet_period"`
	LiveRetries     int           `json:"live_retries"`
	LiveRetryDelay  time.Duration `json:"live_retry_delay"`
}

// Merge returns t with every zero field replaced by the value from defaults
func (t Timing) Merge(defaults Timing) Timing {
	if t.ConnectAttempts == 0 {
		t.ConnectAttempts = defaults.ConnectAttempts
	}
	if t.ReadyAttempts == 0 {
		t.ReadyAttempts = defaults.ReadyAttempts
	}
	if t.ProbeDelay == 0 {
		t.ProbeDelay = defaults.ProbeDelay
	}
	if t.StatusTimeout == 0 {
		t.StatusTimeout = defaults.StatusTimeout
	}
	if t.FrameTimeout == 0 {
		t.FrameTimeout = defaults.FrameTimeout
	}
	if t.SettleDelay == 0 {
		t.SettleDelay = defaults.SettleDelay
	}
	if t.DrainRounds == 0 {
		t.DrainRounds = defaults.DrainRounds
	}
	if t.QuietPeriod == 0 {
		t.QuietPeriod = defaults.QuietPeriod
	}
	if t.LiveRetries == 0 {
		t.LiveRetries = defaults.LiveRetries
	}
	if t.LiveRetryDelay == 0 {
		t.LiveRetryDelay = defaults.LiveRetryDelay
	}
	return t
}

// MemoryDump is the raw result of a flash memory download
type MemoryDump struct {
	// Buffer holds the record sets as length-prefixed telegram blocks
	Buffer        []byte       `json:"-"`
	Blocks        int          `json:"blocks"`
	Telegrams     int          `json:"telegrams"`
	ShortBlocks   int          `json:"short_blocks"`
	ReceiveErrors int          `json:"receive_errors"`
	Stopped       bool         `json:"stopped"`
	Config        *setup.Block `json:"config,omitempty"`
}

// DownloadProgress is reported while a memory download runs
type DownloadProgress struct {
	Telegrams     int `json:"telegrams"`
	Total         int `json:"total"`
	RecordSet     int `json:"record_set"`
	ReceiveErrors int `json:"receive_errors"`
	ShortBlocks   int `json:"short_blocks"`
}

// Percent returns the download progress in percent
func (p DownloadProgress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Telegrams) * 100 / float64(p.Total)
}

// Options are passed to driver constructors
type Options struct {
	Timing Timing
	// PollInterval is used by generations that cannot report their sample
	// period. Zero polls back to back.
	PollInterval time.Duration
}
