package navigation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dpup/navcore/internal/lib/geo"
)

// Maneuver describes the action a traveler performs at the end of a step
type Maneuver struct {
	Type     string    `json:"type"`               // e.g. "depart", "turn", "arrive"
	Modifier string    `json:"modifier,omitempty"` // e.g. "left", "slight right"
	Location geo.Point `json:"location"`
}

// Step is one instruction of a route. The traveler acts on Instruction at
// Maneuver.Location and moves on to the following step.
type Step struct {
	Distance    float64       `json:"distance"` // meters
	Duration    time.Duration `json:"duration"`
	Instruction string        `json:"instruction"`
	Maneuver    Maneuver      `json:"maneuver"`
}

// Destination is the fixed target of a navigation session
type Destination struct {
	Location geo.Point `json:"location"`
	Name     string    `json:"name"`
}

// Route is an immutable computed route. Rerouting produces a new Route.
type Route struct {
	distance float64
	duration time.Duration
	steps    []Step
	geometry []geo.Point
}

// NewRoute validates and copies its inputs into an immutable Route
func NewRoute(distance float64, duration time.Duration, steps []Step, geometry []geo.Point) (*Route, error) {
	if distance < 0 || duration < 0 {
		return nil, fmt.Errorf("%w: negative route totals", ErrInvalidRoute)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: route has no steps", ErrInvalidRoute)
	}
	if len(geometry) < 2 {
		return nil, fmt.Errorf("%w: geometry needs at least 2 points, got %d", ErrInvalidRoute, len(geometry))
	}
	for i, s := range steps {
		if s.Distance < 0 || s.Duration < 0 {
			return nil, fmt.Errorf("%w: step %d has negative distance or duration", ErrInvalidRoute, i)
		}
		if !geo.IsValid(s.Maneuver.Location) {
			return nil, fmt.Errorf("%w: step %d maneuver location out of range", ErrInvalidRoute, i)
		}
	}
	for i, p := range geometry {
		if !geo.IsValid(p) {
			return nil, fmt.Errorf("%w: geometry point %d out of range", ErrInvalidRoute, i)
		}
	}

	return &Route{
		distance: distance,
		duration: duration,
		steps:    append([]Step(nil), steps...),
		geometry: append([]geo.Point(nil), geometry...),
	}, nil
}

// Distance is the total route length in meters
func (r *Route) Distance() float64 { return r.distance }

// Duration is the total expected travel time
func (r *Route) Duration() time.Duration { return r.duration }

// StepCount returns the number of steps (always >= 1)
func (r *Route) StepCount() int { return len(r.steps) }

// Step returns step i. It panics if i is out of range.
func (r *Route) Step(i int) Step { return r.steps[i] }

// Steps returns a copy of the steps
func (r *Route) Steps() []Step { return append([]Step(nil), r.steps...) }

// Geometry returns a copy of the route polyline
func (r *Route) Geometry() []geo.Point { return append([]geo.Point(nil), r.geometry...) }

// Start returns the first point of the geometry
func (r *Route) Start() geo.Point { return r.geometry[0] }

// remainingAfter returns distance and duration of every step after index i
func (r *Route) remainingAfter(i int) (float64, time.Duration) {
	var dist float64
	var dur time.Duration
	for _, s := range r.steps[i+1:] {
		dist += s.Distance
		dur += s.Duration
	}
	return dist, dur
}

// geometryRef exposes the polyline without copying, for per-sample geometry tests
func (r *Route) geometryRef() []geo.Point { return r.geometry }

type routeJSON struct {
	Distance float64       `json:"distance"`
	Duration time.Duration `json:"duration"`
	Steps    []Step        `json:"steps"`
	Geometry string        `json:"geometry"` // Google encoded polyline
}

// MarshalJSON encodes the route with its geometry as an encoded polyline
func (r *Route) MarshalJSON() ([]byte, error) {
	return json.Marshal(routeJSON{
		Distance: r.distance,
		Duration: r.duration,
		Steps:    r.steps,
		Geometry: geo.EncodePolyline(r.geometry),
	})
}

// UnmarshalJSON decodes and re-validates a route
func (r *Route) UnmarshalJSON(data []byte) error {
	var raw routeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	geometry, err := geo.DecodePolyline(raw.Geometry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	decoded, err := NewRoute(raw.Distance, raw.Duration, raw.Steps, geometry)
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}
