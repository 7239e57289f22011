// Package reroute requests a new route once the traveler has been off-route for
// a sustained period.
//
// The coordinator is driven from the goroutine that owns the navigation machine.
// Timer fires and routing responses arrive on other goroutines and are handed
// back through a Dispatcher, so every method body runs on the owner goroutine
// and plain fields guard against overlapping requests.
package reroute

import (
	"context"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
)

// Defaults
const (
	DefaultDebounce = 3 * time.Second
	DefaultTimeout  = 15 * time.Second
)

// Config controls debounce and request timeout
type Config struct {
	Debounce time.Duration
	Timeout  time.Duration
}

// DefaultConfig returns a 3s debounce and 15s request timeout
func DefaultConfig() Config {
	return Config{Debounce: DefaultDebounce, Timeout: DefaultTimeout}
}

// Dispatcher runs fn on the goroutine that owns the navigation machine. It must
// be safe to call from any goroutine and may drop fn once the owner has stopped.
type Dispatcher func(fn func())

// Event reports a reroute lifecycle change that altered navigation state
type Event string

const (
	EventRequested Event = "reroute_requested"
	EventRerouted  Event = "rerouted"
	EventFailed    Event = "reroute_failed"
)

// Coordinator debounces the off-route flag and drives route recomputation
type Coordinator struct {
	ctx      context.Context
	machine  *navigation.Machine
	router   navigation.Router
	clock    clockwork.Clock
	dispatch Dispatcher
	cfg      Config

	// Notify, when set, is called on the owner goroutine after a reroute event changed state
	Notify func(Event)

	// spawn launches the blocking routing call
	spawn func(func())

	timer      clockwork.Timer
	timerToken uint64

	// generation invalidates timers and responses that belong to a stopped session
	generation uint64
	inFlight   bool
	cancel     context.CancelFunc
}

// New creates a coordinator for machine. ctx scopes logging and routing requests;
// a development logger is attached when ctx carries none.
func New(ctx context.Context, machine *navigation.Machine, router navigation.Router, clk clockwork.Clock, dispatch Dispatcher, cfg Config) *Coordinator {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Coordinator{
		ctx:      logging.EnsureLogger(ctx),
		machine:  machine,
		router:   router,
		clock:    clk,
		dispatch: dispatch,
		cfg:      cfg,
		spawn:    func(fn func()) { go fn() },
	}
}

// Observe reacts to the outcome of a sample the machine just processed
func (c *Coordinator) Observe(out navigation.Outcome) {
	if out.Arrived {
		c.Stop()
		return
	}
	if out.Result != navigation.SampleApplied {
		return
	}

	if !out.OffRoute {
		if c.timer != nil {
			logging.Debugw(c.ctx, "reroute: back on route, debounce canceled")
			c.cancelTimer()
		}
		return
	}

	// A pending timer or an in-flight request already covers this excursion
	if c.timer != nil || c.inFlight {
		return
	}
	c.arm()
}

// Stop cancels any pending debounce and abandons an in-flight request. Responses
// that arrive afterwards are discarded.
func (c *Coordinator) Stop() {
	c.cancelTimer()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.inFlight = false
}

// Pending reports whether a debounce timer is armed
func (c *Coordinator) Pending() bool { return c.timer != nil }

// InFlight reports whether a routing request is outstanding
func (c *Coordinator) InFlight() bool { return c.inFlight }

func (c *Coordinator) arm() {
	c.timerToken++
	token := c.timerToken
	c.timer = c.clock.AfterFunc(c.cfg.Debounce, func() {
		c.dispatch(func() { c.onTimer(token) })
	})
	logging.Debugw(c.ctx, "reroute: off route, debounce armed", "debounce", c.cfg.Debounce)
}

func (c *Coordinator) cancelTimer() {
	if c.timer == nil {
		return
	}
	c.timer.Stop()
	c.timer = nil
	c.timerToken++
}

func (c *Coordinator) onTimer(token uint64) {
	// Canceled or superseded while the fire was queued
	if token != c.timerToken || c.timer == nil {
		return
	}
	c.timer = nil

	state := c.machine.State()
	if state.Mode != navigation.ModeActive || state.Destination == nil {
		return
	}
	if !state.OffRoute || c.inFlight {
		return
	}

	c.request(state.Origin, *state.Destination)
}

func (c *Coordinator) request(origin geo.Point, destination navigation.Destination) {
	requestID := uuid.New()
	generation := c.generation

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.Timeout)
	c.cancel = cancel
	c.inFlight = true
	c.machine.SetRerouting(true)
	c.notify(EventRequested)

	logging.Infow(c.ctx, "reroute: requesting new route",
		"request_id", requestID.String(),
		"origin_lat", origin.Latitude,
		"origin_lng", origin.Longitude,
		"destination", destination.Name)

	router := c.router
	c.spawn(func() {
		route, err := router.ComputeRoute(ctx, origin, destination, nil)
		c.dispatch(func() { c.onResult(generation, requestID, cancel, route, err) })
	})
}

func (c *Coordinator) onResult(generation uint64, requestID uuid.UUID, cancel context.CancelFunc, route *navigation.Route, err error) {
	cancel()
	if generation != c.generation {
		logging.Infow(c.ctx, "reroute: discarding response for ended session", "request_id", requestID.String())
		return
	}
	c.inFlight = false
	c.cancel = nil

	if c.machine.Mode() != navigation.ModeActive {
		logging.Infow(c.ctx, "reroute: discarding response, navigation not active", "request_id", requestID.String())
		return
	}

	if err != nil {
		// Off-route is left as-is; the next off-route sample re-arms the debounce
		logging.Warnw(c.ctx, "reroute: routing failed", "request_id", requestID.String(), "error", err)
		c.machine.SetRerouting(false)
		c.notify(EventFailed)
		return
	}

	if err := c.machine.UpdateRoute(route); err != nil {
		logging.Errorw(c.ctx, "reroute: could not apply route", "request_id", requestID.String(), "error", err)
		c.machine.SetRerouting(false)
		c.notify(EventFailed)
		return
	}

	logging.Infow(c.ctx, "reroute: new route applied",
		"request_id", requestID.String(),
		"distance_m", route.Distance(),
		"steps", route.StepCount())
	c.notify(EventRerouted)
}

func (c *Coordinator) notify(e Event) {
	if c.Notify != nil {
		c.Notify(e)
	}
}
