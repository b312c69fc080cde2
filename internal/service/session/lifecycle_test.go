package session

import (
	"context"
	"errors"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle(nil)
	if lc.State() != StateIdle {
		t.Errorf("expected idle, got %v", lc.State())
	}
}

func TestLifecycle_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		want   State
	}{
		{"begin", []string{EventBegin}, StateConnecting},
		{"connect", []string{EventBegin, EventConnect}, StateCapturing},
		{"end while capturing", []string{EventBegin, EventConnect, EventEnd}, StateFinalizing},
		{"full cycle", []string{EventBegin, EventConnect, EventEnd, EventFinish}, StateIdle},
		{"end while connecting", []string{EventBegin, EventEnd}, StateIdle},
		{"terminate connecting", []string{EventBegin, EventTerminate}, StateIdle},
		{"terminate capturing", []string{EventBegin, EventConnect, EventTerminate}, StateIdle},
		{"terminate finalizing", []string{EventBegin, EventConnect, EventEnd, EventTerminate}, StateIdle},
		{"terminate idle", []string{EventTerminate}, StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLifecycle(nil)
			for _, ev := range tt.events {
				if err := lc.Fire(context.Background(), ev); err != nil {
					t.Fatalf("event %s: unexpected error: %v", ev, err)
				}
			}
			if lc.State() != tt.want {
				t.Errorf("expected %v, got %v", tt.want, lc.State())
			}
		})
	}
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		setup  []string
		event  string
		expect State
	}{
		{"connect from idle", nil, EventConnect, StateIdle},
		{"end from idle", nil, EventEnd, StateIdle},
		{"finish from capturing", []string{EventBegin, EventConnect}, EventFinish, StateCapturing},
		{"begin twice", []string{EventBegin}, EventBegin, StateConnecting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLifecycle(nil)
			for _, ev := range tt.setup {
				if err := lc.Fire(context.Background(), ev); err != nil {
					t.Fatalf("setup %s: %v", ev, err)
				}
			}
			err := lc.Fire(context.Background(), tt.event)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if lc.State() != tt.expect {
				t.Errorf("state changed to %v", lc.State())
			}
		})
	}
}

func TestLifecycle_FireWithCanceledContext(t *testing.T) {
	lc := NewLifecycle(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := lc.Fire(ctx, EventBegin); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.State() != StateConnecting {
		t.Errorf("expected connecting, got %v", lc.State())
	}
}

func TestLifecycle_Hook(t *testing.T) {
	type transition struct{ from, to State }
	var got []transition
	lc := NewLifecycle(func(from, to State) {
		got = append(got, transition{from, to})
	})

	for _, ev := range []string{EventBegin, EventConnect, EventEnd, EventFinish, EventTerminate} {
		if err := lc.Fire(context.Background(), ev); err != nil {
			t.Fatalf("event %s: %v", ev, err)
		}
	}

	want := []transition{
		{StateIdle, StateConnecting},
		{StateConnecting, StateCapturing},
		{StateCapturing, StateFinalizing},
		{StateFinalizing, StateIdle},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d transitions (self-transition excluded), got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
