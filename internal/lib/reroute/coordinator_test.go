package reroute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/navcore/internal/lib/clocktest"
	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
)

// MockRouter is a mock implementation of navigation.Router
type MockRouter struct {
	mock.Mock
}

func (m *MockRouter) ComputeRoute(ctx context.Context, origin geo.Point, destination navigation.Destination, waypoints []geo.Point) (*navigation.Route, error) {
	args := m.Called(ctx, origin, destination, waypoints)
	route, _ := args.Get(0).(*navigation.Route)
	return route, args.Error(1)
}

var destination = geo.Point{Latitude: 0, Longitude: 0.01}

func eastRoute(t *testing.T, startLat float64) *navigation.Route {
	t.Helper()
	route, err := navigation.NewRoute(1000, 120*time.Second, []navigation.Step{
		{Distance: 400, Duration: 40 * time.Second, Instruction: "Head east", Maneuver: navigation.Maneuver{Type: "turn", Location: geo.Point{Latitude: startLat, Longitude: 0.004}}},
		{Distance: 600, Duration: 80 * time.Second, Instruction: "Arrive", Maneuver: navigation.Maneuver{Type: "arrive", Location: destination}},
	}, []geo.Point{
		{Latitude: startLat, Longitude: 0},
		{Latitude: startLat, Longitude: 0.002},
		{Latitude: startLat, Longitude: 0.004},
		{Latitude: startLat, Longitude: 0.006},
		{Latitude: startLat, Longitude: 0.008},
		destination,
	})
	require.NoError(t, err)
	return route
}

// harness runs the coordinator single-threaded: dispatched work is queued and
// spawned routing calls only run when the test completes them.
type harness struct {
	t       *testing.T
	clock   *clocktest.Clock
	machine *navigation.Machine
	router  *MockRouter
	coord   *Coordinator
	queue   []func()
	spawned []func()
	events  []Event
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:      t,
		clock:  clocktest.New(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		router: &MockRouter{},
	}
	h.machine = navigation.NewMachine(navigation.DefaultConfig(), h.clock)
	route := eastRoute(t, 0)
	require.NoError(t, h.machine.SetPreviewRoute(route, navigation.Destination{Location: destination, Name: "dest"}, route.Start()))
	require.NoError(t, h.machine.StartActive())

	h.coord = New(context.Background(), h.machine, h.router, h.clock, func(fn func()) {
		h.queue = append(h.queue, fn)
	}, DefaultConfig())
	h.coord.spawn = func(fn func()) { h.spawned = append(h.spawned, fn) }
	h.coord.Notify = func(e Event) { h.events = append(h.events, e) }
	return h
}

func (h *harness) drain() {
	for len(h.queue) > 0 {
		fn := h.queue[0]
		h.queue = h.queue[1:]
		fn()
	}
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.drain()
}

func (h *harness) completeRequests() {
	spawned := h.spawned
	h.spawned = nil
	for _, fn := range spawned {
		fn()
	}
	h.drain()
}

func (h *harness) feed(lat, lng float64) navigation.Outcome {
	out := h.machine.OnSample(navigation.Sample{
		Location:  geo.Point{Latitude: lat, Longitude: lng},
		Timestamp: h.clock.Now(),
	})
	h.coord.Observe(out)
	return out
}

func (h *harness) feedOffRoute() navigation.Outcome {
	return h.feed(0.002, 0.002) // ~220 m north of the route
}

func TestCoordinator_FlipBackBeforeDebounce(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.feedOffRoute().OffRoute)
	assert.True(t, h.coord.Pending())

	h.advance(2 * time.Second)
	require.False(t, h.feed(0, 0.002).OffRoute)
	assert.False(t, h.coord.Pending())

	h.advance(10 * time.Second)
	h.completeRequests()
	h.router.AssertNotCalled(t, "ComputeRoute", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.events)
}

func TestCoordinator_SustainedOffRouteReroutes(t *testing.T) {
	h := newHarness(t)
	newRoute := eastRoute(t, 0.002)
	h.router.On("ComputeRoute", mock.Anything, geo.Point{Latitude: 0.002, Longitude: 0.002},
		navigation.Destination{Location: destination, Name: "dest"}, mock.Anything).Return(newRoute, nil).Once()

	h.feedOffRoute()
	h.advance(time.Second)
	h.feedOffRoute()
	h.advance(time.Second)
	assert.Empty(t, h.spawned, "still inside the debounce window")

	h.advance(time.Second)
	require.Len(t, h.spawned, 1)
	assert.True(t, h.coord.InFlight())
	assert.True(t, h.machine.State().Rerouting)

	h.completeRequests()
	s := h.machine.State()
	assert.Same(t, newRoute, s.Route)
	assert.Equal(t, 0, s.StepIndex)
	assert.False(t, s.OffRoute)
	assert.False(t, s.Rerouting)
	assert.Equal(t, navigation.ModeActive, s.Mode)
	assert.False(t, h.coord.InFlight())
	assert.Equal(t, []Event{EventRequested, EventRerouted}, h.events)
	h.router.AssertExpectations(t)

	// On the new route: no further requests
	h.advance(time.Second)
	assert.False(t, h.feedOffRoute().OffRoute)
	assert.False(t, h.coord.Pending())
}

func TestCoordinator_SingleRequestInFlight(t *testing.T) {
	h := newHarness(t)
	h.router.On("ComputeRoute", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(eastRoute(t, 0.002), nil)

	h.feedOffRoute()
	h.advance(3 * time.Second)
	require.Len(t, h.spawned, 1)

	// Still off-route while the request is outstanding: nothing new is armed
	for i := 0; i < 5; i++ {
		h.advance(2 * time.Second)
		h.feed(0.003, 0.001+float64(i)*0.0001)
		assert.False(t, h.coord.Pending())
	}
	assert.Len(t, h.spawned, 1)

	h.completeRequests()
	h.router.AssertNumberOfCalls(t, "ComputeRoute", 1)
}

func TestCoordinator_FailureRetriesByRecurrence(t *testing.T) {
	h := newHarness(t)
	h.router.On("ComputeRoute", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("service unavailable")).Once()
	h.router.On("ComputeRoute", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(eastRoute(t, 0.002), nil).Once()

	h.feedOffRoute()
	h.advance(3 * time.Second)
	h.completeRequests()

	s := h.machine.State()
	assert.False(t, s.Rerouting)
	assert.True(t, s.OffRoute, "off-route untouched by a failed request")
	assert.Equal(t, []Event{EventRequested, EventFailed}, h.events)
	assert.False(t, h.coord.Pending(), "no explicit retry timer")

	// Next off-route sample re-arms the debounce
	h.advance(time.Second)
	h.feed(0.002, 0.0021)
	assert.True(t, h.coord.Pending())
	h.advance(3 * time.Second)
	h.completeRequests()

	h.router.AssertNumberOfCalls(t, "ComputeRoute", 2)
	assert.Equal(t, 1, h.machine.State().RerouteCount)
}

func TestCoordinator_ResponseAfterEndDiscarded(t *testing.T) {
	h := newHarness(t)
	h.router.On("ComputeRoute", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(eastRoute(t, 0.002), nil)

	h.feedOffRoute()
	h.advance(3 * time.Second)
	require.Len(t, h.spawned, 1)

	h.coord.Stop()
	h.machine.Cancel()
	h.completeRequests()

	s := h.machine.State()
	assert.Equal(t, navigation.ModeIdle, s.Mode)
	assert.Nil(t, s.Route)
	assert.Equal(t, []Event{EventRequested}, h.events)
	assert.False(t, h.coord.InFlight())
}

func TestCoordinator_StopCancelsDebounce(t *testing.T) {
	h := newHarness(t)

	h.feedOffRoute()
	require.True(t, h.coord.Pending())
	h.coord.Stop()
	assert.False(t, h.coord.Pending())
	assert.Equal(t, 0, h.clock.Pending())

	h.advance(10 * time.Second)
	assert.Empty(t, h.spawned)
}

func TestCoordinator_TimerChecksMode(t *testing.T) {
	h := newHarness(t)

	h.feedOffRoute()
	// Session ended without stopping the coordinator: the fire must still be a no-op
	h.machine.Cancel()
	h.advance(3 * time.Second)

	assert.Empty(t, h.spawned)
	h.router.AssertNotCalled(t, "ComputeRoute", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCoordinator_QueuedFireAfterCancelIgnored(t *testing.T) {
	h := newHarness(t)

	h.feedOffRoute()
	// Timer fires but its dispatched work has not run yet
	h.clock.Advance(3 * time.Second)
	require.Len(t, h.queue, 1)

	// A back-on-route sample is processed first and cancels the debounce
	h.feed(0, 0.002)
	h.drain()

	assert.Empty(t, h.spawned)
}

func TestCoordinator_ArrivalStops(t *testing.T) {
	h := newHarness(t)

	h.feedOffRoute()
	require.True(t, h.coord.Pending())

	h.advance(time.Second)
	h.feed(0, 0.004) // advance to the last step
	h.advance(time.Second)
	out := h.feed(0, 0.0099)
	require.True(t, out.Arrived)

	assert.False(t, h.coord.Pending())
	h.advance(10 * time.Second)
	assert.Empty(t, h.spawned)
}

func TestCoordinator_BareContextGetsLogger(t *testing.T) {
	h := newHarness(t)

	assert.NotPanics(t, func() {
		h.coord.Observe(navigation.Outcome{Result: navigation.SampleApplied, OffRoute: true})
	})
	assert.True(t, h.coord.Pending())
	assert.NotNil(t, logging.FromContext(h.coord.ctx))
}
