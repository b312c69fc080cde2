package models

import "time"

// Direction of a call session.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CallSession describes one bounded recording unit.
type CallSession struct {
	ID        string     `json:"id" validate:"required"`
	Direction Direction  `json:"direction" validate:"oneof=inbound outbound"`
	StartedAt time.Time  `json:"startedAt" validate:"required"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	State     string     `json:"state"`
	// Truncated is set when capture hit the buffer ceiling.
	Truncated bool `json:"truncated,omitempty"`
}

// Duration returns the session length, or zero while the session is open.
func (s CallSession) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// AudioFrame is an immutable chunk of captured samples.
type AudioFrame struct {
	Samples    []float32
	SampleRate int
	Channels   int
	CapturedAt time.Time
}
