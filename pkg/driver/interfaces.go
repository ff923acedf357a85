// pkg/driver/interfaces.go
package driver

import (
	"context"
	"time"

	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/setup"
)

// DeviceProtocol is the interface both logger generations implement. The
// acquisition loop and the services are written against it only.
type DeviceProtocol interface {
	// Identity
	Generation() model.Generation
	Transport() protocol.Transport
	State() State

	// Channels returns the default channel layout of the generation
	Channels() model.ChannelConfig

	// Readiness probing. Both return a NotReady error when the retry budget
	// is exhausted.
	CheckConnection(ctx context.Context) error
	CheckDataReady(ctx context.Context) error

	// SettleDelay is waited after the transport was opened by the caller
	SettleDelay() time.Duration

	// Live streaming. BeginStreaming runs the handshake and returns the poll
	// period and the channel layout the snapshots will use.
	BeginStreaming(ctx context.Context) (*StreamPlan, error)
	LiveSnapshot(ctx context.Context) (*model.SamplePoint, error)
	EndStreaming(ctx context.Context) error

	// Logging control
	StartLogging(ctx context.Context) error
	StopLogging(ctx context.Context) error
}

// Configurer is implemented by generations that exchange their configuration
// block over the serial link
type Configurer interface {
	ConfigLayout() *setup.Layout
	ReadConfiguration(ctx context.Context) (*setup.Block, error)
	WriteConfiguration(ctx context.Context, block *setup.Block) error
}

// TelemetryConfigurer is implemented by generations with a separate
// telemetry configuration block
type TelemetryConfigurer interface {
	TelemetryLayout() *setup.Layout
	ReadTelemetryConfiguration(ctx context.Context) (*setup.Block, error)
	WriteTelemetryConfiguration(ctx context.Context, block *setup.Block) error
}

// TelegramDecoder turns stored binary telegrams into sample points
type TelegramDecoder interface {
	TelegramLength() int
	// SkipTelegrams is the number of leading telegrams of a block that carry
	// no samples
	SkipTelegrams() int
	// MinTelegrams is the smallest block size worth decoding
	MinTelegrams() int
	// DecodeTelegram decodes one telegram. channels is updated in place when
	// the telegram carries analog mode information.
	DecodeTelegram(telegram []byte, channels *model.ChannelConfig) (*model.SamplePoint, error)
	// TimeStep returns the sample period stored in a telegram, 0 if none
	TimeStep(telegram []byte) time.Duration
}

// MemoryReader is implemented by generations whose flash memory can be
// downloaded over the serial link
type MemoryReader interface {
	DownloadMemory(ctx context.Context, stop <-chan struct{}, progress ProgressFunc) (*MemoryDump, error)
	ClearMemory(ctx context.Context) (bool, error)
}

// ProgressFunc receives download progress
type ProgressFunc func(p DownloadProgress)
