package navigation

import (
	"context"
	"time"

	"github.com/dpup/navcore/internal/lib/geo"
)

// Mode is the lifecycle phase of a navigation session
type Mode int

const (
	ModeIdle Mode = iota
	ModePreview
	ModeActive
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModePreview:
		return "preview"
	case ModeActive:
		return "active"
	default:
		return "unknown"
	}
}

// Sample is a single position fix from the location collaborator
type Sample struct {
	Location  geo.Point `json:"location"`
	Accuracy  *float64  `json:"accuracy,omitempty"` // meters
	Heading   *float64  `json:"heading,omitempty"`  // degrees, 0 = north, clockwise
	Speed     *float64  `json:"speed,omitempty"`    // m/s
	Timestamp time.Time `json:"timestamp"`
}

// State is a snapshot of the navigation core. Values returned by Machine.State
// are copies; mutating them has no effect on the machine.
type State struct {
	Mode        Mode         `json:"mode"`
	Route       *Route       `json:"route,omitempty"`
	Destination *Destination `json:"destination,omitempty"`
	Origin      geo.Point    `json:"origin"`
	StepIndex   int          `json:"step_index"`

	// DistanceToNextManeuver is measured from the last sample to the maneuver of
	// the current step. On the sample that advances a step it is measured to the
	// new step's maneuver, while RemainingDistance is still computed against the
	// step the sample was measured on, so for that one update it can exceed
	// RemainingDistance. The next sample brings both onto the new step.
	DistanceToNextManeuver float64 `json:"distance_to_next_maneuver"`

	OffRoute          bool          `json:"off_route"`
	Rerouting         bool          `json:"rerouting"`
	ETA               time.Time     `json:"eta"` // zero when there is no route
	RemainingDistance float64       `json:"remaining_distance"`
	RemainingDuration time.Duration `json:"remaining_duration"`
	LastSample        *Sample       `json:"last_sample,omitempty"`
	RerouteCount      int           `json:"reroute_count"`
}

// CurrentStep returns the step being travelled, false when no route is set
func (s State) CurrentStep() (Step, bool) {
	if s.Route == nil {
		return Step{}, false
	}
	return s.Route.Step(s.StepIndex), true
}

// NextStep returns the step after the current one, false on the last step
func (s State) NextStep() (Step, bool) {
	if s.Route == nil || s.StepIndex+1 >= s.Route.StepCount() {
		return Step{}, false
	}
	return s.Route.Step(s.StepIndex + 1), true
}

// OnLastStep reports whether the current step is the final one
func (s State) OnLastStep() bool {
	return s.Route != nil && s.StepIndex == s.Route.StepCount()-1
}

// Router is the routing collaborator: it computes a route from origin to the
// destination, optionally through waypoints.
type Router interface {
	ComputeRoute(ctx context.Context, origin geo.Point, destination Destination, waypoints []geo.Point) (*Route, error)
}

// RouterFunc adapts a function to the Router interface
type RouterFunc func(ctx context.Context, origin geo.Point, destination Destination, waypoints []geo.Point) (*Route, error)

// ComputeRoute calls f
func (f RouterFunc) ComputeRoute(ctx context.Context, origin geo.Point, destination Destination, waypoints []geo.Point) (*Route, error) {
	return f(ctx, origin, destination, waypoints)
}
