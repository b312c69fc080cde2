package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// State is the lifecycle state of the controller.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateCapturing  State = "capturing"
	StateFinalizing State = "finalizing"
)

// String returns the state name.
func (s State) String() string { return string(s) }

// Lifecycle events.
const (
	EventBegin     = "begin"
	EventConnect   = "connect"
	EventEnd       = "end"
	EventFinish    = "finish"
	EventTerminate = "terminate"
)

// ErrInvalidTransition is returned when an event does not apply to the
// current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Lifecycle is the session state machine.
//
// State transitions:
//
//	IDLE → CONNECTING → CAPTURING → FINALIZING → IDLE
//	            │
//	            └── end ──→ IDLE (ended before capture began)
//
//	any ── terminate ──→ IDLE
//
// Transition hooks run after the state changes and must not fire events.
type Lifecycle struct {
	fsm *fsm.FSM
}

// NewLifecycle creates a lifecycle in IDLE. hook may be nil.
func NewLifecycle(hook func(from, to State)) *Lifecycle {
	callbacks := fsm.Callbacks{}
	if hook != nil {
		callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
			hook(State(e.Src), State(e.Dst))
		}
	}

	return &Lifecycle{
		fsm: fsm.NewFSM(
			string(StateIdle),
			fsm.Events{
				{Name: EventBegin, Src: []string{string(StateIdle)}, Dst: string(StateConnecting)},
				{Name: EventConnect, Src: []string{string(StateConnecting)}, Dst: string(StateCapturing)},
				{Name: EventEnd, Src: []string{string(StateConnecting)}, Dst: string(StateIdle)},
				{Name: EventEnd, Src: []string{string(StateCapturing)}, Dst: string(StateFinalizing)},
				{Name: EventFinish, Src: []string{string(StateFinalizing)}, Dst: string(StateIdle)},
				{Name: EventTerminate, Src: []string{
					string(StateIdle), string(StateConnecting), string(StateCapturing), string(StateFinalizing),
				}, Dst: string(StateIdle)},
			},
			callbacks,
		),
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return State(l.fsm.Current())
}

// Can reports whether event applies to the current state.
func (l *Lifecycle) Can(event string) bool {
	return l.fsm.Can(event)
}

// Fire applies event. A self-transition (terminate while idle) is not an
// error. Cancellation of ctx does not abort the transition.
func (l *Lifecycle) Fire(ctx context.Context, event string) error {
	err := l.fsm.Event(context.WithoutCancel(ctx), event)
	if err == nil {
		return nil
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, invalid.State)
	}
	return fmt.Errorf("lifecycle event %s: %w", event, err)
}
