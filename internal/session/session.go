// Package session runs a navigation session: it owns the state machine and the
// rerouting coordinator, serializes every reaction on a single goroutine and
// pushes the resulting state to sinks and subscribers.
package session

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc/codes"

	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
	"github.com/dpup/navcore/internal/lib/reroute"
	"github.com/dpup/navcore/internal/location"
)

// ErrSessionClosed is returned for operations posted to a session that has stopped
var ErrSessionClosed = errors.NewC("session closed", codes.Canceled)

// Config wires the state machine and coordinator settings
type Config struct {
	Navigation navigation.Config
	Reroute    reroute.Config
	Clock      clockwork.Clock
}

// DefaultConfig returns default thresholds and timings on the real clock
func DefaultConfig() Config {
	return Config{
		Navigation: navigation.DefaultConfig(),
		Reroute:    reroute.DefaultConfig(),
		Clock:      clockwork.NewRealClock(),
	}
}

// Session is the controller for one traveler. All methods are safe to call from
// any goroutine once Run has been started.
type Session struct {
	router  navigation.Router
	cfg     Config
	machine *navigation.Machine
	sinks   []Sink

	events chan func()
	done   chan struct{}

	// Owned by the loop goroutine
	ctx         context.Context
	coord       *reroute.Coordinator
	id          uuid.UUID
	subscribers map[uint64]chan Update
	nextSubID   uint64
}

// New creates an idle session. Call Run to start processing.
func New(router navigation.Router, cfg Config, sinks ...Sink) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Session{
		router:      router,
		cfg:         cfg,
		machine:     navigation.NewMachine(cfg.Navigation, cfg.Clock),
		sinks:       sinks,
		events:      make(chan func()),
		done:        make(chan struct{}),
		subscribers: map[uint64]chan Update{},
	}
}

// Run processes events until ctx is done. Each reaction runs to completion
// before the next one starts. Run must be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	ctx = logging.EnsureLogger(ctx)
	s.ctx = ctx
	s.coord = reroute.New(ctx, s.machine, s.router, s.cfg.Clock, s.dispatch, s.cfg.Reroute)
	s.coord.Notify = s.onReroute
	defer s.shutdown()

	logging.Debugw(ctx, "session: loop started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.events:
			s.react(fn)
		}
	}
}

// Plan computes the initial route and enters preview
func (s *Session) Plan(ctx context.Context, origin geo.Point, destination navigation.Destination, waypoints ...geo.Point) (*navigation.Route, error) {
	ctx = logging.EnsureLogger(ctx)
	route, err := s.router.ComputeRoute(ctx, origin, destination, waypoints)
	if err != nil {
		logging.Warnw(ctx, "session: initial routing failed", "destination", destination.Name, "error", err)
		return nil, fmt.Errorf("%w: %w", navigation.ErrRoutingFailure, err)
	}
	if err := s.Preview(ctx, route, destination, origin); err != nil {
		return nil, err
	}
	return route, nil
}

// Preview shows route without starting guidance
func (s *Session) Preview(ctx context.Context, route *navigation.Route, destination navigation.Destination, origin geo.Point) error {
	var err error
	if postErr := s.do(ctx, func() {
		err = s.preview(route, destination, origin)
	}); postErr != nil {
		return postErr
	}
	return err
}

// Confirm activates the previewed route
func (s *Session) Confirm(ctx context.Context) error {
	var err error
	if postErr := s.do(ctx, func() {
		err = s.confirm()
	}); postErr != nil {
		return postErr
	}
	return err
}

// Begin previews route and immediately activates it
func (s *Session) Begin(ctx context.Context, route *navigation.Route, destination navigation.Destination, origin geo.Point) error {
	var err error
	if postErr := s.do(ctx, func() {
		if err = s.preview(route, destination, origin); err != nil {
			return
		}
		err = s.confirm()
	}); postErr != nil {
		return postErr
	}
	return err
}

// Feed processes a position sample
func (s *Session) Feed(ctx context.Context, sample navigation.Sample) (navigation.Outcome, error) {
	var out navigation.Outcome
	err := s.do(ctx, func() {
		out = s.machine.OnSample(sample)
		s.coord.Observe(out)
		if out.Result != navigation.SampleApplied {
			return
		}
		event := sampleEvent(out)
		s.logSample(event, out)
		s.publish(event)
	})
	return out, err
}

// End cancels navigation. Any pending debounce is canceled and a routing
// response still in flight will be discarded. Ending an idle session is a no-op.
func (s *Session) End(ctx context.Context) error {
	return s.do(ctx, s.end)
}

// State returns the current snapshot
func (s *Session) State(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		snap = newSnapshot(s.id, s.machine.State())
	})
	return snap, err
}

// Subscribe returns a channel of updates and a func that unsubscribes. The
// channel holds only the latest update; a slow reader skips intermediate ones.
// The channel is closed on unsubscribe or when the session stops.
func (s *Session) Subscribe(ctx context.Context) (<-chan Update, func(), error) {
	ch := make(chan Update, 1)
	var id uint64
	err := s.do(ctx, func() {
		s.nextSubID++
		id = s.nextSubID
		s.subscribers[id] = ch
	})
	if err != nil {
		return nil, nil, err
	}
	unsubscribe := func() {
		_ = s.do(context.Background(), func() {
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe, nil
}

// Follow feeds samples from source until ctx is done or the source closes
func (s *Session) Follow(ctx context.Context, source location.Source) error {
	ctx = logging.EnsureLogger(ctx)
	samples, err := source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to location source: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-samples:
			if !ok {
				logging.Debugw(ctx, "session: location source closed")
				return nil
			}
			if _, err := s.Feed(ctx, sample); err != nil {
				return err
			}
		}
	}
}

// Done is closed once the session has stopped
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// do runs fn on the loop goroutine and waits for it to finish
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.events <- wrapped:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrSessionClosed
		}
	}
}

// dispatch hands timer fires and routing responses back to the loop
func (s *Session) dispatch(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

func (s *Session) react(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(s.ctx, "session: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()
	fn()
}

func (s *Session) preview(route *navigation.Route, destination navigation.Destination, origin geo.Point) error {
	wasIdle := s.machine.Mode() == navigation.ModeIdle
	if err := s.machine.SetPreviewRoute(route, destination, origin); err != nil {
		return err
	}
	if wasIdle {
		s.id = uuid.New()
	}
	logging.Infow(s.ctx, "session: previewing route",
		"session_id", s.id.String(),
		"destination", destination.Name,
		"distance_m", route.Distance(),
		"steps", route.StepCount())
	s.publish(EventPreview)
	return nil
}

func (s *Session) confirm() error {
	if err := s.machine.StartActive(); err != nil {
		return err
	}
	logging.Infow(s.ctx, "session: navigation started", "session_id", s.id.String())
	s.publish(EventActive)
	return nil
}

func (s *Session) end() {
	s.coord.Stop()
	if s.machine.Mode() == navigation.ModeIdle {
		return
	}
	s.machine.Cancel()
	logging.Infow(s.ctx, "session: navigation canceled", "session_id", s.id.String())
	s.publish(EventCanceled)
}

func (s *Session) shutdown() {
	s.end()
	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		close(sub)
	}
	close(s.done)
	logging.Debugw(s.ctx, "session: loop stopped", "session_id", s.id.String())
}

func (s *Session) onReroute(e reroute.Event) {
	switch e {
	case reroute.EventRequested:
		s.publish(EventRerouteRequested)
	case reroute.EventRerouted:
		s.publish(EventRerouted)
	case reroute.EventFailed:
		s.publish(EventRerouteFailed)
	}
}

func (s *Session) logSample(event Event, out navigation.Outcome) {
	state := s.machine.State()
	switch event {
	case EventArrived:
		logging.Infow(s.ctx, "session: arrived", "session_id", s.id.String())
	case EventStepAdvanced:
		logging.Infow(s.ctx, "session: step advanced", "session_id", s.id.String(), "step", state.StepIndex)
	case EventOffRoute, EventOnRoute:
		logging.Infow(s.ctx, "session: off-route changed", "session_id", s.id.String(), "off_route", out.OffRoute)
	default:
		logging.Debugw(s.ctx, "session: progress",
			"session_id", s.id.String(),
			"step", state.StepIndex,
			"distance_to_maneuver_m", state.DistanceToNextManeuver,
			"remaining_m", state.RemainingDistance)
	}
}

// publish pushes the current state to sinks and subscribers
func (s *Session) publish(event Event) {
	update := Update{Event: event, Snapshot: newSnapshot(s.id, s.machine.State())}

	for _, sink := range s.sinks {
		if err := sink.Render(s.ctx, update); err != nil {
			logging.Warnw(s.ctx, "session: sink failed", "event", string(event), "error", err)
		}
	}

	for _, sub := range s.subscribers {
		select {
		case sub <- update:
			continue
		default:
		}
		// Replace the stale update
		select {
		case <-sub:
		default:
		}
		select {
		case sub <- update:
		default:
		}
	}
}
