package acquisition

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/internal/protocol/protocoltest"
	"unilog-service/pkg/driver"
)

// fakeProtocol answers snapshots from a script. Once the script is used up
// the last step repeats.
type fakeProtocol struct {
	transport *protocoltest.Transport

	mu        sync.Mutex
	script    []func() (*model.SamplePoint, error)
	calls     int
	beginErr  error
	readyErr  error
	readies   int
	ends      int
	endCtxErr error

	// blockReady makes CheckDataReady hang until its context is done
	blockReady   bool
	readyEntered chan struct{}
}

func sample(v, i int32) func() (*model.SamplePoint, error) {
	return func() (*model.SamplePoint, error) {
		return &model.SamplePoint{Values: []int32{v, i, 0}}, nil
	}
}

func failing(err error) func() (*model.SamplePoint, error) {
	return func() (*model.SamplePoint, error) { return nil, err }
}

func channels() model.ChannelConfig {
	return model.ChannelConfig{Channels: []model.Channel{
		{Name: "Voltage", Unit: "V", Factor: 1, Kind: model.ChannelMeasured, Active: true},
		{Name: "Current", Unit: "A", Factor: 1, Kind: model.ChannelMeasured, Active: true},
		{Name: "Power", Unit: "W", Factor: 1, Kind: model.ChannelDerived, Derivation: model.DerivePower, DependsOn: []int{0, 1}, Active: true},
	}}
}

func (f *fakeProtocol) Generation() model.Generation { return model.GenerationUniLog }

func (f *fakeProtocol) Transport() protocol.Transport { return f.transport }

func (f *fakeProtocol) State() driver.State { return driver.StateReady }

func (f *fakeProtocol) Channels() model.ChannelConfig { return channels() }

func (f *fakeProtocol) CheckConnection(context.Context) error { return nil }

func (f *fakeProtocol) SettleDelay() time.Duration { return time.Millisecond }

func (f *fakeProtocol) StartLogging(context.Context) error { return nil }

func (f *fakeProtocol) StopLogging(context.Context) error { return nil }

func (f *fakeProtocol) CheckDataReady(ctx context.Context) error {
	f.mu.Lock()
	f.readies++
	block, entered := f.blockReady, f.readyEntered
	f.mu.Unlock()
	if block {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}
	return f.readyErr
}

func (f *fakeProtocol) BeginStreaming(context.Context) (*driver.StreamPlan, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &driver.StreamPlan{PollInterval: time.Millisecond, Channels: channels()}, nil
}

func (f *fakeProtocol) LiveSnapshot(ctx context.Context) (*model.SamplePoint, error) {
	f.mu.Lock()
	step := f.script[min(f.calls, len(f.script)-1)]
	f.calls++
	f.mu.Unlock()
	return step()
}

func (f *fakeProtocol) EndStreaming(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	f.endCtxErr = ctx.Err()
	return nil
}

func (f *fakeProtocol) counts() (calls, readies, ends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.readies, f.ends
}

// recorder collects loop events
type recorder struct {
	mu      sync.Mutex
	events  []Event
	samples chan struct{}
}

func newRecorder() *recorder {
	return &recorder{samples: make(chan struct{}, 1024)}
}

func (r *recorder) sink(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if e.Type == EventSample {
		select {
		case r.samples <- struct{}{}:
		default:
		}
	}
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) waitSamples(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.samples:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for sample %d", i+1)
		}
	}
}

func newLoop(f *fakeProtocol, r *recorder) *Loop {
	return New(f, r.sink, Config{DeviceID: "dev-1", MaxTimeouts: 2}, zap.NewNop())
}

func TestStopFinalizesOnce(t *testing.T) {
	f := &fakeProtocol{
		transport: protocoltest.New("/dev/ttyUSB0"),
		script:    []func() (*model.SamplePoint, error){sample(12000, 2000), sample(11000, 3000)},
	}
	r := newRecorder()
	l := newLoop(f, r)

	require.NoError(t, l.Start(context.Background()))
	require.Error(t, l.Start(context.Background()))
	r.waitSamples(t, 3)
	l.Stop()
	l.Stop()

	s, err := l.Wait()
	require.NoError(t, err)
	require.Equal(t, model.SessionStateFinalized, s.State)
	require.GreaterOrEqual(t, s.PointCount, 3)
	require.Equal(t, int64(0), s.Points[0].ElapsedMs)
	require.Equal(t, int32(24000), s.Points[0].Values[2])
	require.True(t, s.Displayable[2])

	require.Equal(t, 1, r.count(EventFinalized))
	require.Zero(t, r.count(EventAborted))
	_, _, ends := f.counts()
	require.Equal(t, 1, ends)
	require.Equal(t, 1, f.transport.Opens())
	require.Equal(t, 1, f.transport.Closes())
	require.Equal(t, StateIdle, l.State())
}

func TestCancelFinalizesOnce(t *testing.T) {
	f := &fakeProtocol{
		transport: protocoltest.New("/dev/ttyUSB0"),
		script:    []func() (*model.SamplePoint, error){sample(12000, 1000)},
	}
	r := newRecorder()
	l := newLoop(f, r)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))
	r.waitSamples(t, 2)
	cancel()

	s, err := l.Wait()
	require.NoError(t, err)
	require.Equal(t, model.SessionStateFinalized, s.State)
	require.Equal(t, 1, r.count(EventFinalized))
	_, _, ends := f.counts()
	require.Equal(t, 1, ends)
	require.NoError(t, f.endCtxErr)
}

func TestKeepsOpenTransport(t *testing.T) {
	f := &fakeProtocol{
		transport: protocoltest.New("/dev/ttyUSB0"),
		script:    []func() (*model.SamplePoint, error){sample(1, 1)},
	}
	require.NoError(t, f.transport.Open(context.Background()))
	r := newRecorder()
	l := newLoop(f, r)

	require.NoError(t, l.Start(context.Background()))
	r.waitSamples(t, 1)
	l.Stop()
	_, err := l.Wait()
	require.NoError(t, err)
	require.True(t, f.transport.IsOpen())
	require.Zero(t, f.transport.Closes())
}

func TestTimeoutRechecksReadiness(t *testing.T) {
	timeout := protocol.TimeoutError("read", 0, 24)
	f := &fakeProtocol{
		transport: protocoltest.New("/dev/ttyUSB0"),
		script: []func() (*model.SamplePoint, error){
			sample(1, 1), failing(timeout), failing(timeout), sample(2, 2),
		},
	}
	r := newRecorder()
	l := newLoop(f, r)

	require.NoError(t, l.Start(context.Background()))
	r.waitSamples(t, 3)
	l.Stop()

	s, err := l.Wait()
	require.NoError(t, err)
	require.Equal(t, int32(1), s.Points[0].Values[0])
	require.Equal(t, int32(2), s.Points[1].Values[0])
	_, readies, _ := f.counts()
	require.Equal(t, 2, readies)
	require.Equal(t, 2, l.Stats().Timeouts)
}

func TestTooManyTimeoutsAbort(t *testing.T) {
	f := &fakeProtocol{
		transport: protocoltest.New("/dev/ttyUSB0"),
		script: []func() (*model.SamplePoint, error){
			sample(1, 1), failing(protocol.TimeoutError("read", 0, 24)),
		},
		readyErr: protocol.NotReadyError("check data ready", 3),
	}
	r := newRecorder()
	l := newLoop(f, r)

	require.NoError(t, l.Start(context.Background()))
	s, err := l.Wait()
	require.Nil(t, s)
	require.True(t, protocol.IsTimeout(err))
	require.Equal(t, 1, r.count(EventAborted))
	require.Zero(t, r.count(EventFinalized))
	_, readies, ends := f.counts()
	require.Equal(t, 2, readies)
	require.Equal(t, 1, ends)
	require.False(t, f.transport.IsOpen())
}

func TestIOErrorAborts(t *testing.T) {
	f := &fakeProtocol{
		transport: protocoltest.New("/dev/ttyUSB0"),
		script: []func() (*model.SamplePoint, error){
			sample(1, 1), failing(protocol.IOError("read", context.DeadlineExceeded)),
		},
	}
	r := newRecorder()
	l := newLoop(f, r)

	require.NoError(t, l.Start(context.Background()))
	_, err := l.Wait()
	require.ErrorIs(t, err, protocol.ErrIO)
	require.Equal(t, 1, r.count(EventAborted))
	require.Equal(t, 1, r.count(EventSample))
}

func TestBeginStreamingFailure(t *testing.T) {
	f := &fakeProtocol{
		transport: protocoltest.New("/dev/ttyUSB0"),
		beginErr:  protocol.NotReadyError("check data ready", 20),
	}
	r := newRecorder()
	l := newLoop(f, r)

	require.NoError(t, l.Start(context.Background()))
	_, err := l.Wait()
	require.ErrorIs(t, err, protocol.ErrNotReady)
	require.Equal(t, 1, r.count(EventAborted))
	require.False(t, f.transport.IsOpen())
	calls, _, _ := f.counts()
	require.Zero(t, calls)
}

func TestOpenFailure(t *testing.T) {
	tr := protocoltest.New("/dev/ttyUSB0")
	tr.FailOpen(protocol.IOError("open", context.Canceled))
	f := &fakeProtocol{transport: tr}
	r := newRecorder()
	l := newLoop(f, r)

	require.NoError(t, l.Start(context.Background()))
	_, err := l.Wait()
	require.ErrorIs(t, err, protocol.ErrIO)
	require.Equal(t, 1, r.count(EventAborted))
	_, _, ends := f.counts()
	require.Zero(t, ends)
}

func TestStopDuringReadinessRecheck(t *testing.T) {
	const (
		pollInterval = 10 * time.Millisecond
		readTimeout  = 100 * time.Millisecond
	)
	f := &fakeProtocol{
		transport: protocoltest.New("/dev/ttyUSB0"),
		script: []func() (*model.SamplePoint, error){
			sample(12000, 1000),
			failing(protocol.TimeoutError("live", 0, 24)),
		},
		blockReady:   true,
		readyEntered: make(chan struct{}, 1),
	}
	r := newRecorder()
	l := New(f, r.sink, Config{DeviceID: "dev-1", PollInterval: pollInterval}, zap.NewNop())

	require.NoError(t, l.Start(context.Background()))
	r.waitSamples(t, 1)
	select {
	case <-f.readyEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("readiness re-check never started")
	}

	stopped := time.Now()
	l.Stop()
	select {
	case <-l.Done():
	case <-time.After(pollInterval + readTimeout):
		t.Fatalf("loop still running %s after stop", time.Since(stopped))
	}

	session, err := l.Wait()
	require.NoError(t, err)
	require.Equal(t, model.SessionStateFinalized, session.State)
	require.Equal(t, 1, session.PointCount)
	require.Equal(t, StateIdle, l.State())
	require.Equal(t, 1, r.count(EventFinalized))
	require.Zero(t, r.count(EventAborted))
}

func TestStopBeforeStart(t *testing.T) {
	f := &fakeProtocol{
		transport: protocoltest.New("/dev/ttyUSB0"),
		script:    []func() (*model.SamplePoint, error){sample(1, 1)},
	}
	r := newRecorder()
	l := newLoop(f, r)
	l.Stop()
	require.NoError(t, l.Start(context.Background()))

	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not end")
	}
	require.Equal(t, 1, r.count(EventFinalized)+r.count(EventAborted))
}
