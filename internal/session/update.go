package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/dpup/navcore/internal/lib/navigation"
)

// Event names the transition that produced an Update
type Event string

const (
	EventPreview          Event = "preview"
	EventActive           Event = "active"
	EventProgress         Event = "progress"
	EventStepAdvanced     Event = "step_advanced"
	EventOffRoute         Event = "off_route"
	EventOnRoute          Event = "on_route"
	EventRerouteRequested Event = "reroute_requested"
	EventRerouted         Event = "rerouted"
	EventRerouteFailed    Event = "reroute_failed"
	EventArrived          Event = "arrived"
	EventCanceled         Event = "canceled"
)

// Snapshot is the navigation state plus the derived fields a renderer needs
type Snapshot struct {
	SessionID       uuid.UUID        `json:"session_id"`
	State           navigation.State `json:"state"`
	Instruction     string           `json:"instruction,omitempty"`
	NextInstruction string           `json:"next_instruction,omitempty"`
}

// Update is pushed to sinks and subscribers after every state change
type Update struct {
	Event Event `json:"event"`
	Snapshot
}

// Sink receives every update synchronously on the session loop
type Sink interface {
	Render(ctx context.Context, update Update) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, update Update) error

// Render calls f
func (f SinkFunc) Render(ctx context.Context, update Update) error {
	return f(ctx, update)
}

func newSnapshot(id uuid.UUID, state navigation.State) Snapshot {
	snap := Snapshot{SessionID: id, State: state}
	if step, ok := state.CurrentStep(); ok {
		snap.Instruction = step.Instruction
	}
	if step, ok := state.NextStep(); ok {
		snap.NextInstruction = step.Instruction
	}
	return snap
}

// sampleEvent picks the most significant transition caused by a sample
func sampleEvent(out navigation.Outcome) Event {
	switch {
	case out.Arrived:
		return EventArrived
	case out.Advanced:
		return EventStepAdvanced
	case out.OffRouteChanged && out.OffRoute:
		return EventOffRoute
	case out.OffRouteChanged:
		return EventOnRoute
	default:
		return EventProgress
	}
}
