package render

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
	"github.com/dpup/navcore/internal/session"
)

var destination = navigation.Destination{Location: geo.Point{Latitude: 0, Longitude: 0.01}, Name: "Market"}

func testRoute(t *testing.T) *navigation.Route {
	t.Helper()
	route, err := navigation.NewRoute(1000, 120*time.Second, []navigation.Step{
		{Distance: 400, Duration: 40 * time.Second, Instruction: "Turn left", Maneuver: navigation.Maneuver{Type: "turn", Modifier: "left", Location: geo.Point{Latitude: 0, Longitude: 0.004}}},
		{Distance: 600, Duration: 80 * time.Second, Instruction: "Arrive at Market", Maneuver: navigation.Maneuver{Type: "arrive", Location: destination.Location}},
	}, []geo.Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 0.004},
		{Latitude: 0, Longitude: 0.007},
		destination.Location,
	})
	require.NoError(t, err)
	return route
}

func activeUpdate(t *testing.T, position geo.Point) session.Update {
	d := destination
	return session.Update{
		Event: session.EventProgress,
		Snapshot: session.Snapshot{
			SessionID: uuid.MustParse("0b0e7c1e-1111-4a4a-9c9c-123456789abc"),
			State: navigation.State{
				Mode:              navigation.ModeActive,
				Route:             testRoute(t),
				Destination:       &d,
				Origin:            position,
				RemainingDistance: 650,
				LastSample:        &navigation.Sample{Location: position},
			},
			Instruction: "Turn left",
		},
	}
}

func TestCameraFor_Active(t *testing.T) {
	position := geo.Point{Latitude: 0.0002, Longitude: 0.0065}
	camera := CameraFor(activeUpdate(t, position).State)

	assert.Equal(t, position, camera.Center)
	require.NotNil(t, camera.Bounds)
	// Geometry behind the traveler is not framed
	assert.InDelta(t, 0.0065, camera.Bounds.SouthWest.Longitude, 1e-9)
	assert.InDelta(t, 0.01, camera.Bounds.NorthEast.Longitude, 1e-9)
	assert.InDelta(t, 0.0002, camera.Bounds.NorthEast.Latitude, 1e-9)
}

func TestCameraFor_PreviewUsesRouteStart(t *testing.T) {
	d := destination
	camera := CameraFor(navigation.State{Mode: navigation.ModePreview, Route: testRoute(t), Destination: &d})

	assert.Equal(t, geo.Point{Latitude: 0, Longitude: 0}, camera.Center)
	require.NotNil(t, camera.Bounds)
	assert.InDelta(t, 0.0, camera.Bounds.SouthWest.Longitude, 1e-9)
	assert.InDelta(t, 0.01, camera.Bounds.NorthEast.Longitude, 1e-9)
}

func TestCameraFor_Idle(t *testing.T) {
	origin := geo.Point{Latitude: 38.5, Longitude: -121.4}
	camera := CameraFor(navigation.State{Origin: origin})

	assert.Equal(t, origin, camera.Center)
	assert.Nil(t, camera.Bounds)
}

func TestWriteKML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, activeUpdate(t, geo.Point{Latitude: 0.0001, Longitude: 0.002})))

	doc := buf.String()
	assert.Contains(t, doc, "<kml")
	assert.Contains(t, doc, "navigation 0b0e7c1e-1111-4a4a-9c9c-123456789abc")
	assert.Contains(t, doc, "<LineString>")
	assert.Contains(t, doc, "#route")
	assert.Contains(t, doc, "<name>Market</name>")
	assert.Contains(t, doc, "<name>Position</name>")
	assert.Contains(t, doc, "Turn left")
}

func TestWriteKML_OffRouteStyle(t *testing.T) {
	update := activeUpdate(t, geo.Point{Latitude: 0.002, Longitude: 0.002})
	update.State.OffRoute = true

	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, update))
	assert.Contains(t, buf.String(), "<styleUrl>#off-route</styleUrl>")
}

func TestWriteKML_Idle(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, session.Update{Event: session.EventArrived}))

	doc := buf.String()
	assert.NotContains(t, doc, "<LineString>")
	assert.NotContains(t, doc, "<Point>")
}

func TestKMLSink_ReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.kml")
	sink := NewKMLSink(path)
	ctx := context.Background()

	require.NoError(t, sink.Render(ctx, activeUpdate(t, geo.Point{Latitude: 0, Longitude: 0.002})))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<LineString>")

	require.NoError(t, sink.Render(ctx, session.Update{Event: session.EventCanceled}))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "<LineString>")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestKMLSink_BadDirectory(t *testing.T) {
	sink := NewKMLSink(filepath.Join(t.TempDir(), "missing", "snapshot.kml"))
	assert.Error(t, sink.Render(context.Background(), session.Update{}))
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink()
	assert.NoError(t, sink.Render(context.Background(), activeUpdate(t, geo.Point{Latitude: 0, Longitude: 0.002})))
	assert.NoError(t, sink.Render(context.Background(), session.Update{Event: session.EventCanceled}))
}
