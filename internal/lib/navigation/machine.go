package navigation

import (
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dpup/navcore/internal/lib/geo"
)

// Default thresholds, in meters
const (
	DefaultStepAdvanceThreshold = 30.0
	DefaultArrivalThreshold     = 30.0
	DefaultOffRouteThreshold    = 50.0
)

// Config holds the geometric thresholds of the state machine
type Config struct {
	StepAdvanceThreshold float64
	ArrivalThreshold     float64
	OffRouteThreshold    float64

	// PolylineDistance measures distance to the route geometry for the off-route
	// test. Defaults to geo.DistanceToPolyline.
	PolylineDistance geo.PolylineMetric
}

// DefaultConfig returns the standard thresholds with vertex-based off-route geometry
func DefaultConfig() Config {
	return Config{
		StepAdvanceThreshold: DefaultStepAdvanceThreshold,
		ArrivalThreshold:     DefaultArrivalThreshold,
		OffRouteThreshold:    DefaultOffRouteThreshold,
		PolylineDistance:     geo.DistanceToPolyline,
	}
}

// SampleResult classifies what the machine did with a sample
type SampleResult int

const (
	// SampleIgnored means no active route, so the sample was not considered
	SampleIgnored SampleResult = iota
	// SampleStale means the sample was older than or identical to the last one
	SampleStale
	// SampleApplied means the sample updated progress
	SampleApplied
)

// Outcome describes the transitions caused by a single sample
type Outcome struct {
	Result          SampleResult
	Advanced        bool
	Arrived         bool
	OffRoute        bool
	OffRouteChanged bool
}

// Machine is the navigation state machine. It is not safe for concurrent use;
// callers serialize access (see session.Session).
type Machine struct {
	cfg   Config
	clock clockwork.Clock
	state State
}

// NewMachine creates a machine in idle mode
func NewMachine(cfg Config, clk clockwork.Clock) *Machine {
	if cfg.PolylineDistance == nil {
		cfg.PolylineDistance = geo.DistanceToPolyline
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Machine{cfg: cfg, clock: clk}
}

// State returns a copy of the current state
func (m *Machine) State() State {
	s := m.state
	if s.Destination != nil {
		d := *s.Destination
		s.Destination = &d
	}
	if s.LastSample != nil {
		ls := *s.LastSample
		s.LastSample = &ls
	}
	return s
}

// Mode returns the current mode
func (m *Machine) Mode() Mode { return m.state.Mode }

// SetPreviewRoute loads a route for preview. Allowed from idle or preview.
func (m *Machine) SetPreviewRoute(route *Route, destination Destination, origin geo.Point) error {
	if route == nil {
		return fmt.Errorf("%w: preview requires a route", ErrInvalidTransition)
	}
	if m.state.Mode == ModeActive {
		return fmt.Errorf("%w: cannot preview while navigation is active", ErrInvalidTransition)
	}

	m.state = State{
		Mode:        ModePreview,
		Destination: &destination,
		Origin:      origin,
	}
	m.loadRoute(route)
	return nil
}

// StartActive confirms the previewed route
func (m *Machine) StartActive() error {
	if m.state.Mode != ModePreview || m.state.Route == nil {
		return fmt.Errorf("%w: start requires a previewed route (mode=%s)", ErrInvalidTransition, m.state.Mode)
	}
	m.state.Mode = ModeActive
	return nil
}

// UpdateRoute swaps in a recomputed route, resetting progress. Mode and
// destination are preserved.
func (m *Machine) UpdateRoute(route *Route) error {
	if route == nil {
		return fmt.Errorf("%w: update requires a route", ErrInvalidTransition)
	}
	if m.state.Mode == ModeIdle {
		return fmt.Errorf("%w: no navigation session to update", ErrInvalidTransition)
	}
	m.loadRoute(route)
	m.state.RerouteCount++
	return nil
}

// SetRerouting sets the rerouting flag
func (m *Machine) SetRerouting(rerouting bool) { m.state.Rerouting = rerouting }

// SetOffRoute sets the off-route flag. The next sample recomputes it from geometry.
func (m *Machine) SetOffRoute(offRoute bool) { m.state.OffRoute = offRoute }

// Cancel ends navigation and returns to idle
func (m *Machine) Cancel() { m.state = State{} }

// Arrive ends navigation at the destination and returns to idle
func (m *Machine) Arrive() { m.state = State{} }

// OnSample advances progress with a position fix. Only active sessions react;
// samples older than or identical to the last applied one are discarded.
func (m *Machine) OnSample(sample Sample) Outcome {
	if m.state.Mode != ModeActive || m.state.Route == nil {
		return Outcome{Result: SampleIgnored}
	}
	if m.isStale(sample) {
		return Outcome{Result: SampleStale, OffRoute: m.state.OffRoute}
	}

	route := m.state.Route
	out := Outcome{Result: SampleApplied}

	// Distance to the maneuver that ends the step being travelled
	measured := m.state.StepIndex
	distanceToManeuver := geo.Distance(sample.Location, route.Step(measured).Maneuver.Location)

	// Never advance more than one step per sample
	if distanceToManeuver < m.cfg.StepAdvanceThreshold && measured < route.StepCount()-1 {
		m.state.StepIndex++
		out.Advanced = true
	}

	if m.state.OnLastStep() && geo.Distance(sample.Location, m.state.Destination.Location) < m.cfg.ArrivalThreshold {
		m.Arrive()
		out.Arrived = true
		return out
	}

	offRoute := m.cfg.PolylineDistance(sample.Location, route.geometryRef()) > m.cfg.OffRouteThreshold
	out.OffRouteChanged = offRoute != m.state.OffRoute
	out.OffRoute = offRoute
	m.state.OffRoute = offRoute

	// Remaining = what is left of the measured step plus every following step
	restDistance, restDuration := route.remainingAfter(measured)
	m.state.RemainingDistance = distanceToManeuver + restDistance
	m.state.RemainingDuration = partialDuration(route.Step(measured), distanceToManeuver) + restDuration
	m.state.ETA = m.clock.Now().Add(m.state.RemainingDuration)

	if out.Advanced {
		m.state.DistanceToNextManeuver = geo.Distance(sample.Location, route.Step(m.state.StepIndex).Maneuver.Location)
	} else {
		m.state.DistanceToNextManeuver = distanceToManeuver
	}

	m.state.Origin = sample.Location
	s := sample
	m.state.LastSample = &s
	return out
}

func (m *Machine) isStale(sample Sample) bool {
	last := m.state.LastSample
	if last == nil {
		return false
	}
	if sample.Timestamp.Before(last.Timestamp) {
		return true
	}
	return sample.Timestamp.Equal(last.Timestamp) && sample.Location == last.Location
}

// loadRoute resets progress to the start of route
func (m *Machine) loadRoute(route *Route) {
	first := route.Step(0)
	m.state.Route = route
	m.state.StepIndex = 0
	m.state.DistanceToNextManeuver = first.Distance
	m.state.OffRoute = false
	m.state.Rerouting = false
	m.state.RemainingDistance = route.Distance()
	m.state.RemainingDuration = route.Duration()
	m.state.ETA = m.clock.Now().Add(route.Duration())
}

// partialDuration scales a step's duration by the fraction of its distance still ahead
func partialDuration(step Step, distanceLeft float64) time.Duration {
	if step.Distance <= 0 {
		return step.Duration
	}
	fraction := math.Min(1, distanceLeft/step.Distance)
	return time.Duration(float64(step.Duration) * fraction)
}
