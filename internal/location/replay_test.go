package location

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/navcore/internal/lib/navigation"
)

func collect(t *testing.T, ch <-chan navigation.Sample) []navigation.Sample {
	t.Helper()
	var samples []navigation.Sample
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return samples
			}
			samples = append(samples, s)
		case <-timeout:
			t.Fatal("replay did not finish")
			return nil
		}
	}
}

func TestReplaySource_EmitsWholeTrace(t *testing.T) {
	trace, err := LoadTrace("testdata/east.yaml")
	require.NoError(t, err)

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := NewReplaySource(trace, 0, clockwork.NewFakeClockAt(start))

	ch, err := src.Subscribe(context.Background())
	require.NoError(t, err)
	assert.True(t, src.IsRunning())

	samples := collect(t, ch)
	require.Len(t, samples, 6)
	assert.Equal(t, start, samples[0].Timestamp)
	assert.Equal(t, start.Add(50*time.Second), samples[5].Timestamp)
	assert.Equal(t, 0.0099, samples[5].Location.Longitude)
}

func TestReplaySource_IntervalFollowsClock(t *testing.T) {
	trace, err := LoadTrace("testdata/east.yaml")
	require.NoError(t, err)

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(start)
	src := NewReplaySource(trace, time.Second, clk)
	ch, err := src.Subscribe(context.Background())
	require.NoError(t, err)

	next := func() navigation.Sample {
		t.Helper()
		select {
		case s, ok := <-ch:
			require.True(t, ok, "replay closed early")
			return s
		case <-time.After(5 * time.Second):
			t.Fatal("no sample after the interval elapsed")
			return navigation.Sample{}
		}
	}

	// The first sample is immediate; later ones wait for the clock
	assert.Equal(t, 0.0, next().Location.Longitude)
	for i := 1; i < 6; i++ {
		select {
		case s := <-ch:
			t.Fatalf("sample %v emitted before the interval elapsed", s.Location)
		case <-time.After(20 * time.Millisecond):
		}
		clk.Advance(time.Second)
		s := next()
		assert.Equal(t, trace.Samples[i].Lng, s.Location.Longitude)
		assert.Equal(t, start.Add(trace.Samples[i].Offset), s.Timestamp)
	}

	assert.Empty(t, collect(t, ch))
}

func TestReplaySource_ContextCancelCloses(t *testing.T) {
	trace, err := LoadTrace("testdata/east.yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	src := NewReplaySource(trace, time.Hour, nil)
	ch, err := src.Subscribe(ctx)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, 0.0, first.Location.Longitude)

	cancel()
	assert.Empty(t, collect(t, ch))
}

func TestReplaySource_Stop(t *testing.T) {
	trace, err := LoadTrace("testdata/east.yaml")
	require.NoError(t, err)

	src := NewReplaySource(trace, time.Hour, nil)
	ch, err := src.Subscribe(context.Background())
	require.NoError(t, err)
	<-ch

	src.Stop()
	assert.False(t, src.IsRunning())
	assert.Empty(t, collect(t, ch))

	// Stop is idempotent
	src.Stop()
}

func TestReplaySource_SingleSubscription(t *testing.T) {
	trace, err := LoadTrace("testdata/east.yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewReplaySource(trace, time.Hour, nil)
	_, err = src.Subscribe(ctx)
	require.NoError(t, err)

	_, err = src.Subscribe(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}
