package session

import (
	"context"
	"errors"
	"time"

	"call-recap-service/internal/models"
)

// CallEventKind is a telephony notification.
type CallEventKind string

const (
	CallBegan     CallEventKind = "began"
	CallConnected CallEventKind = "connected"
	CallEnded     CallEventKind = "ended"
)

// CallEvent is delivered by the telephony event source.
type CallEvent struct {
	Kind      CallEventKind    `json:"kind"`
	SessionID string           `json:"sessionId,omitempty"`
	Direction models.Direction `json:"direction,omitempty"`
	At        time.Time        `json:"at"`
}

// HandleEvent applies one telephony event. An ended event for a session
// other than the active one is ignored.
func (c *Controller) HandleEvent(ctx context.Context, ev CallEvent) error {
	switch ev.Kind {
	case CallBegan:
		_, err := c.Begin(ctx, ev.SessionID, ev.Direction)
		return err
	case CallConnected:
		return c.Connect(ctx)
	case CallEnded:
		if ev.SessionID != "" {
			if st := c.Status(); st.Session != nil && st.Session.ID != ev.SessionID {
				c.logger.Warn().Str("sessionId", ev.SessionID).Msg("Ignoring end for inactive session")
				return nil
			}
		}
		_, err := c.End(ctx)
		return err
	default:
		return errors.New("unknown call event " + string(ev.Kind))
	}
}

// Run consumes telephony events until events is closed or ctx is done.
// An ended event finalizes on its own goroutine so cancellation is still
// observed; no further event is read until finalization returns. On
// cancellation the active session is terminated.
func (c *Controller) Run(ctx context.Context, events <-chan CallEvent) error {
	var ending chan struct{}
	for {
		in := events
		if ending != nil {
			in = nil
		}
		select {
		case <-ctx.Done():
			c.Terminate(context.WithoutCancel(ctx))
			if ending != nil {
				<-ending
			}
			return ctx.Err()
		case <-ending:
			ending = nil
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			if ev.Kind != CallEnded {
				c.dispatch(ctx, ev)
				continue
			}
			ending = make(chan struct{})
			go func(done chan struct{}) {
				defer close(done)
				c.dispatch(ctx, ev)
			}(ending)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, ev CallEvent) {
	if err := c.HandleEvent(ctx, ev); err != nil {
		c.logger.Warn().Err(err).Str("event", string(ev.Kind)).Msg("Call event failed")
	}
}
