// Package acquisition runs the live polling loop of one logger.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"unilog-service/internal/calculation"
	"unilog-service/internal/model"
	"unilog-service/internal/protocol"
	"unilog-service/pkg/driver"
)

// State is the lifecycle of a loop
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StatePolling  State = "polling"
	StateStopping State = "stopping"
)

// EventType classifies loop events
type EventType string

const (
	EventSample        EventType = "sample"
	EventFinalized     EventType = "session_finalized"
	EventAborted       EventType = "session_aborted"
	EventConfigWarning EventType = "config_warning"
	EventStateChanged  EventType = "state_changed"
)

// Event is emitted from the loop goroutine
type Event struct {
	Type      EventType          `json:"type"`
	DeviceID  string             `json:"device_id"`
	SessionID string             `json:"session_id,omitempty"`
	State     State              `json:"state,omitempty"`
	Sample    *model.SamplePoint `json:"sample,omitempty"`
	Session   *model.Session     `json:"-"`
	Message   string             `json:"message,omitempty"`
	Err       error              `json:"-"`
	Timestamp time.Time          `json:"timestamp"`
}

// Sink receives loop events. It is called on the loop goroutine and must not
// block.
type Sink func(Event)

// Config tunes a loop
type Config struct {
	DeviceID string
	Params   calculation.Params
	// PollInterval overrides the period reported by the handshake
	PollInterval time.Duration
	// MaxTimeouts is the number of consecutive poll timeouts tolerated
	MaxTimeouts int
	// StopTimeout bounds the stop command sent while shutting down
	StopTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxTimeouts <= 0 {
		c.MaxTimeouts = 3
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	return c
}

// Stats is a snapshot of a running loop
type Stats struct {
	State        State         `json:"state"`
	SessionID    string        `json:"session_id,omitempty"`
	Points       int           `json:"points"`
	Timeouts     int           `json:"timeouts"`
	PollInterval time.Duration `json:"poll_interval"`
	StartedAt    time.Time     `json:"started_at"`
}

// channelReporter is implemented by drivers that learn analog modes while
// streaming
type channelReporter interface {
	LiveChannels() model.ChannelConfig
}

// Loop polls one logger until stopped. A loop runs once.
type Loop struct {
	proto  driver.DeviceProtocol
	sink   Sink
	cfg    Config
	logger *zap.Logger

	started  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	finalize sync.Once
	cancel   context.CancelFunc

	mutex    sync.Mutex
	state    State
	session  *model.Session
	stats    Stats
	err      error
	timeouts int
}

// New creates an idle loop
func New(proto driver.DeviceProtocol, sink Sink, cfg Config, logger *zap.Logger) *Loop {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = func(Event) {}
	}
	return &Loop{
		proto: proto,
		sink:  sink,
		cfg:   cfg,
		logger: logger.With(
			zap.String("component", "acquisition"),
			zap.String("device_id", cfg.DeviceID),
			zap.String("generation", string(proto.Generation())),
		),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		state:  StateIdle,
	}
}

// Start launches the loop goroutine. ctx bounds the whole run; cancelling it
// stops the loop like Stop does.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("acquisition loop already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.mutex.Lock()
	l.cancel = cancel
	l.mutex.Unlock()
	if l.stopping.Load() {
		cancel()
	}
	go func() {
		defer cancel()
		l.run(runCtx)
	}()
	return nil
}

// Stop requests the loop to finish. A read or readiness check in flight is
// cancelled, so the loop ends within one poll cycle.
func (l *Loop) Stop() {
	l.stopping.Store(true)
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.mutex.Lock()
	cancel := l.cancel
	l.mutex.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the loop has ended
func (l *Loop) Done() <-chan struct{} { return l.done }

// Wait blocks until the loop has ended and returns the finalized session or
// the error that aborted it
func (l *Loop) Wait() (*model.Session, error) {
	<-l.done
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

// State returns the current loop state
func (l *Loop) State() State {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.state
}

// Stats returns a snapshot of the loop counters
func (l *Loop) Stats() Stats {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	s := l.stats
	s.State = l.state
	if l.session != nil {
		s.SessionID = l.session.ID.String()
		s.Points = l.session.PointCount
	}
	return s
}

func (l *Loop) setState(s State) {
	l.mutex.Lock()
	changed := l.state != s
	l.state = s
	l.mutex.Unlock()
	if changed {
		l.emit(Event{Type: EventStateChanged, State: s})
	}
}

func (l *Loop) emit(e Event) {
	e.DeviceID = l.cfg.DeviceID
	e.Timestamp = time.Now()
	l.sink(e)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	defer l.setState(StateIdle)

	l.setState(StateStarting)
	release, opened, err := protocol.Acquire(ctx, l.proto.Transport())
	if err != nil {
		l.abort(err)
		return
	}
	defer release()

	if opened {
		if err := l.sleep(ctx, l.proto.SettleDelay()); err != nil {
			l.abort(err)
			return
		}
	}

	plan, err := l.proto.BeginStreaming(ctx)
	if err != nil {
		if l.stopping.Load() {
			err = fmt.Errorf("stopped while starting: %w", err)
		}
		l.abort(fmt.Errorf("failed to begin streaming: %w", err))
		return
	}
	if plan.Config != nil {
		if warning := plan.Config.CompatibilityWarning(); warning != "" {
			l.logger.Warn("Configuration warning", zap.String("warning", warning))
			l.emit(Event{Type: EventConfigWarning, Message: warning})
		}
	}

	interval := plan.PollInterval
	if l.cfg.PollInterval > 0 {
		interval = l.cfg.PollInterval
	}

	session := model.NewSession(l.proto.Generation(), model.SessionSourceLive, plan.Channels)
	l.mutex.Lock()
	l.session = session
	l.stats.PollInterval = interval
	l.stats.StartedAt = time.Now()
	l.mutex.Unlock()
	l.logger.Info("Acquisition started",
		zap.String("session_id", session.ID.String()),
		zap.Duration("poll_interval", interval),
		zap.Bool("port_opened", opened),
	)

	l.setState(StatePolling)
	if err := l.poll(ctx, session, interval); err != nil {
		l.abort(err)
		return
	}
	l.finish(ctx, session)
}

// poll collects samples until the loop is stopped or ctx is done. Only
// errors that must discard the session are returned.
func (l *Loop) poll(ctx context.Context, session *model.Session, interval time.Duration) error {
	var first time.Time
	for !l.stopping.Load() && ctx.Err() == nil {
		cycle := time.Now()

		p, err := l.proto.LiveSnapshot(ctx)
		if err != nil {
			if ctx.Err() != nil || l.stopping.Load() {
				return nil
			}
			if !protocol.IsTimeout(err) {
				return fmt.Errorf("failed to poll live data: %w", err)
			}
			if err := l.recover(ctx, err); err != nil {
				if ctx.Err() != nil || l.stopping.Load() {
					return nil
				}
				return err
			}
			continue
		}
		l.mutex.Lock()
		l.timeouts = 0
		l.mutex.Unlock()

		now := time.Now()
		if first.IsZero() {
			first = now
		}
		p.ElapsedMs = now.Sub(first).Milliseconds()
		l.mutex.Lock()
		err = session.Append(p)
		l.mutex.Unlock()
		if err != nil {
			return fmt.Errorf("failed to append sample: %w", err)
		}
		l.emit(Event{Type: EventSample, SessionID: session.ID.String(), Sample: p})

		if wait := interval - time.Since(cycle); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return nil
			}
		}
	}
	return nil
}

// recover handles a poll timeout with a readiness re-check. The loop gives
// up after MaxTimeouts consecutive timeouts.
func (l *Loop) recover(ctx context.Context, cause error) error {
	l.mutex.Lock()
	l.timeouts++
	l.stats.Timeouts++
	n := l.timeouts
	l.mutex.Unlock()

	if l.stopping.Load() {
		return nil
	}
	if n > l.cfg.MaxTimeouts {
		return fmt.Errorf("giving up after %d consecutive timeouts: %w", n, cause)
	}
	l.logger.Warn("Live poll timed out, probing readiness", zap.Int("consecutive", n), zap.Error(cause))

	err := l.proto.CheckDataReady(ctx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil, l.stopping.Load():
		return nil
	case protocol.IsTimeout(err), errors.Is(err, protocol.ErrNotReady):
		l.logger.Warn("Readiness re-check failed", zap.Error(err))
		return nil
	default:
		return fmt.Errorf("failed to re-check readiness: %w", err)
	}
}

// sleep waits for d, returning early when the loop is stopped
func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return errors.New("stopped")
	case <-timer.C:
		return nil
	}
}

// cleanupContext survives cancellation of ctx for the stop command
func (l *Loop) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.cfg.StopTimeout)
}

func (l *Loop) endStreaming(ctx context.Context) {
	if !l.proto.Transport().IsOpen() {
		return
	}
	cctx, cancel := l.cleanupContext(ctx)
	defer cancel()
	if err := l.proto.EndStreaming(cctx); err != nil {
		l.logger.Warn("Failed to stop live streaming", zap.Error(err))
	}
}

func (l *Loop) finish(ctx context.Context, session *model.Session) {
	l.setState(StateStopping)
	l.endStreaming(ctx)

	if r, ok := l.proto.(channelReporter); ok {
		live := r.LiveChannels()
		for i := range session.Channels.Channels {
			if i < live.Len() && session.Channels.Channels[i].Analog {
				session.Channels.SetAnalogMode(i, live.Channels[i].AnalogMode)
			}
		}
	}
	l.finalize.Do(func() {
		l.mutex.Lock()
		if err := calculation.Pass(session, l.cfg.Params); err != nil {
			l.logger.Warn("Derived pass failed", zap.Error(err))
		}
		session.Finalize()
		l.mutex.Unlock()
		l.logger.Info("Acquisition finished",
			zap.String("session_id", session.ID.String()),
			zap.Int("points", session.PointCount),
		)
		l.emit(Event{Type: EventFinalized, SessionID: session.ID.String(), Session: session})
	})
}

func (l *Loop) abort(err error) {
	l.setState(StateStopping)
	l.endStreaming(context.Background())

	l.mutex.Lock()
	session := l.session
	l.err = err
	l.mutex.Unlock()

	e := Event{Type: EventAborted, Message: err.Error(), Err: err}
	if session != nil {
		l.mutex.Lock()
		session.Abort()
		l.mutex.Unlock()
		e.SessionID = session.ID.String()
	}
	l.logger.Error("Acquisition aborted", zap.Error(err))
	l.emit(e)
}
