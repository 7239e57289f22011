package render

import (
	"context"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/navcore/internal/session"
)

// LogSink writes every update as a structured log line
type LogSink struct{}

// NewLogSink creates a LogSink
func NewLogSink() *LogSink { return &LogSink{} }

// Render logs update. Progress updates are debug-level.
func (LogSink) Render(ctx context.Context, update session.Update) error {
	ctx = logging.EnsureLogger(ctx)
	state := update.State
	camera := CameraFor(state)

	fields := []interface{}{
		"session_id", update.SessionID.String(),
		"event", string(update.Event),
		"mode", state.Mode.String(),
		"camera_lat", camera.Center.Latitude,
		"camera_lng", camera.Center.Longitude,
	}
	if state.Route != nil {
		fields = append(fields,
			"step", state.StepIndex,
			"instruction", update.Instruction,
			"distance_to_maneuver_m", state.DistanceToNextManeuver,
			"remaining_m", state.RemainingDistance,
			"remaining", state.RemainingDuration,
			"eta", state.ETA,
			"off_route", state.OffRoute,
			"rerouting", state.Rerouting)
	}

	if update.Event == session.EventProgress {
		logging.Debugw(ctx, "navigation update", fields...)
	} else {
		logging.Infow(ctx, "navigation update", fields...)
	}
	return nil
}
