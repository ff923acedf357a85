// internal/model/session.go
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SamplePoint is one row of raw channel values. Values use the x1000
// engineering convention and have the arity of the session's channel config.
type SamplePoint struct {
	Index     int     `json:"index"`
	ElapsedMs int64   `json:"elapsed_ms"`
	Values    []int32 `json:"values"`
}

// Value returns the value of channel i or 0 when out of range
func (p *SamplePoint) Value(i int) int32 {
	if i < 0 || i >= len(p.Values) {
		return 0
	}
	return p.Values[i]
}

// SessionSource tells where a session's points came from
type SessionSource string

const (
	SessionSourceLive  SessionSource = "live"
	SessionSourceBatch SessionSource = "batch"
)

// SessionState is the lifecycle of a session
type SessionState string

const (
	SessionStateOpen      SessionState = "open"
	SessionStateFinalized SessionState = "finalized"
	SessionStateAborted   SessionState = "aborted"
)

// Session is an ordered, append-only series of sample points
type Session struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	DeviceID      *uuid.UUID     `json:"device_id,omitempty" db:"device_id"`
	Generation    Generation     `json:"generation" db:"generation"`
	Source        SessionSource  `json:"source" db:"source"`
	State         SessionState   `json:"state" db:"state"`
	Label         string         `json:"label" db:"label"`
	Channels      ChannelConfig  `json:"channels" db:"channels"`
	Displayable   []bool         `json:"displayable" db:"displayable"`
	Points        []*SamplePoint `json:"points,omitempty"`
	PointCount    int            `json:"point_count" db:"point_count"`
	ReceiveErrors int            `json:"receive_errors" db:"receive_errors"`
	StartedAt     time.Time      `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
}

// NewSession creates an open session for the given channel layout. Active
// measured channels start displayable; derived ones wait for the derived pass.
func NewSession(generation Generation, source SessionSource, channels ChannelConfig) *Session {
	displayable := make([]bool, channels.Len())
	for i, ch := range channels.Channels {
		displayable[i] = ch.Active && !ch.IsDerived()
	}
	return &Session{
		ID:          uuid.New(),
		Generation:  generation,
		Source:      source,
		State:       SessionStateOpen,
		Channels:    channels,
		Displayable: displayable,
		StartedAt:   time.Now(),
	}
}

// Append adds a point to an open session
func (s *Session) Append(p *SamplePoint) error {
	if s.State != SessionStateOpen {
		return fmt.Errorf("session %s is %s", s.ID, s.State)
	}
	if len(p.Values) != s.Channels.Len() {
		return fmt.Errorf("sample arity %d does not match %d channels", len(p.Values), s.Channels.Len())
	}
	p.Index = len(s.Points)
	s.Points = append(s.Points, p)
	s.PointCount = len(s.Points)
	return nil
}

// Finalize closes the session for appends
func (s *Session) Finalize() {
	if s.State != SessionStateOpen {
		return
	}
	now := time.Now()
	s.State = SessionStateFinalized
	s.FinishedAt = &now
}

// Abort marks the session as discarded
func (s *Session) Abort() {
	if s.State != SessionStateOpen {
		return
	}
	now := time.Now()
	s.State = SessionStateAborted
	s.FinishedAt = &now
	s.Points = nil
	s.PointCount = 0
}

// Series returns the values of channel i across all points
func (s *Session) Series(i int) []int32 {
	out := make([]int32, len(s.Points))
	for k, p := range s.Points {
		out[k] = p.Value(i)
	}
	return out
}
