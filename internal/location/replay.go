package location

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/jonboulle/clockwork"

	"github.com/dpup/navcore/internal/lib/navigation"
)

// ReplaySource plays a recorded trace back as a live position feed
type ReplaySource struct {
	trace    *Trace
	interval time.Duration
	clock    clockwork.Clock

	// Background replay control
	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewReplaySource creates a source that emits one trace sample per interval.
// A zero interval emits samples as fast as the consumer reads them.
func NewReplaySource(trace *Trace, interval time.Duration, clk clockwork.Clock) *ReplaySource {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &ReplaySource{
		trace:    trace,
		interval: interval,
		clock:    clk,
	}
}

// Subscribe starts the replay. Sample timestamps are the trace offsets anchored
// at the time of subscription. Only one subscription per source is allowed.
func (r *ReplaySource) Subscribe(ctx context.Context) (<-chan navigation.Sample, error) {
	ctx = logging.EnsureLogger(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, fmt.Errorf("%w: replay already running", ErrUnavailable)
	}
	r.running = true
	r.stopChan = make(chan struct{})

	out := make(chan navigation.Sample)
	start := r.clock.Now()

	logging.Infow(ctx, "replay: starting", "trace", r.trace.Name, "samples", len(r.trace.Samples), "interval", r.interval)
	go r.replayLoop(ctx, start, r.stopChan, out)
	return out, nil
}

// Stop ends the replay and closes the subscription channel
func (r *ReplaySource) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stopChan)
}

// IsRunning returns whether the replay is active
func (r *ReplaySource) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *ReplaySource) replayLoop(ctx context.Context, start time.Time, stop <-chan struct{}, out chan<- navigation.Sample) {
	defer close(out)
	defer func() {
		if rec := recover(); rec != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "replay: recovered from panic",
				"error", rec, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := r.clock.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	for i := range r.trace.Samples {
		if i > 0 && tick != nil {
			select {
			case <-ctx.Done():
				logging.Debugw(ctx, "replay: stopping due to context cancellation")
				return
			case <-stop:
				logging.Debugw(ctx, "replay: stopping due to stop signal")
				return
			case <-tick:
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case out <- r.trace.Sample(i, start):
		}
	}
	logging.Infow(ctx, "replay: trace exhausted", "trace", r.trace.Name)
}
