// internal/driver/unilog2/command.go
package unilog2

// Commands contains the UniLog 2 serial command set
var Commands = struct {
	QueryState   []byte
	Reset        []byte
	LiveValues   []byte
	StartLogging []byte
	StopLogging  []byte
}{
	QueryState:   []byte{0x74},                   // 't'
	Reset:        []byte{0x1B, 0x5B, 0x44},       // ESC [ D
	LiveValues:   []byte{0x1B, 0x5B, 0x00, 0x30}, // ESC [ NUL 0
	StartLogging: []byte{0x1B, 0x5B, 0x43},       // ESC [ C
	StopLogging:  []byte{0x1B, 0x5B, 0x44},       // ESC [ D
}

// StatusReady is answered to QueryState once the logger accepts commands
const StatusReady byte = 0x47 // 'G'

const (
	// chunkLength is the size of one read of a live page
	chunkLength = 38
	// chunksPerPage reads make up one live text page
	chunksPerPage = 4
	// PageLength is the size of a complete live text page
	PageLength = chunkLength * chunksPerPage

	// minPageLength separates text pages from stray answers
	minPageLength = 100

	// drainChunk is the size of the residual reads after a ready answer
	drainChunk = 50
	// drainLimit caps a single read-until-quiet drain
	drainLimit = 512
)
