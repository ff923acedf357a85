// internal/protocol/reader.go
package protocol

import (
	"context"
	"time"
)

// pollInterval bounds a single blocking read so ctx cancellation and
// deadlines are observed promptly.
const pollInterval = 50 * time.Millisecond

// chunkReader reads whatever is available within one poll interval. It
// returns 0, nil when nothing arrived.
type chunkReader func(p []byte) (int, error)

// readExactly collects n bytes or fails with a timeout after timeout elapsed.
func readExactly(ctx context.Context, op string, read chunkReader, n int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	deadline := time.Now().Add(timeout)

	for got < n {
		if err := ctx.Err(); err != nil {
			return buf[:got], err
		}
		if time.Now().After(deadline) {
			return buf[:got], TimeoutError(op, got, n)
		}
		k, err := read(buf[got:])
		if err != nil {
			return buf[:got], IOError(op, err)
		}
		got += k
	}
	return buf, nil
}

// readQuiet drains until no byte has arrived for quiet, max bytes were read
// or timeout elapsed. An empty result is not an error.
func readQuiet(ctx context.Context, op string, read chunkReader, max int, quiet, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, max)
	got := 0
	deadline := time.Now().Add(timeout)
	lastByte := time.Now()

	for got < max {
		if err := ctx.Err(); err != nil {
			return buf[:got], err
		}
		now := time.Now()
		if now.After(deadline) || now.Sub(lastByte) >= quiet {
			break
		}
		k, err := read(buf[got:])
		if err != nil {
			return buf[:got], IOError(op, err)
		}
		if k > 0 {
			got += k
			lastByte = time.Now()
		}
	}
	return buf[:got], nil
}
