package render

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	kml "github.com/twpayne/go-kml"

	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/session"
)

var (
	routeStyle    = kml.SharedStyle("route", kml.LineStyle(kml.Color(color.RGBA{R: 0x1a, G: 0x73, B: 0xe8, A: 0xff}), kml.Width(5)))
	offRouteStyle = kml.SharedStyle("off-route", kml.LineStyle(kml.Color(color.RGBA{R: 0xd9, G: 0x30, B: 0x25, A: 0xff}), kml.Width(5)))
)

// KMLSink rewrites a KML snapshot of the session on every update
type KMLSink struct {
	path string
}

// NewKMLSink creates a sink writing to path
func NewKMLSink(path string) *KMLSink {
	return &KMLSink{path: path}
}

// Render writes the snapshot to a temp file and renames it into place so
// viewers polling the file never see a partial document
func (s *KMLSink) Render(ctx context.Context, update session.Update) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".navcore-*.kml")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteKML(tmp, update); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// WriteKML renders update as a KML document: the route, the destination and
// the traveler's position
func WriteKML(w io.Writer, update session.Update) error {
	state := update.State
	children := []kml.Element{
		kml.Name(fmt.Sprintf("navigation %s", update.SessionID)),
		kml.Description(fmt.Sprintf("%s (%s)", update.Event, state.Mode)),
		routeStyle,
		offRouteStyle,
	}

	if state.Route != nil {
		style := routeStyle
		if state.OffRoute {
			style = offRouteStyle
		}
		children = append(children, kml.Placemark(
			kml.Name("Route"),
			kml.Description(fmt.Sprintf("%.0f m remaining", state.RemainingDistance)),
			kml.StyleURL(style.URL()),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(coordinates(state.Route.Geometry())...),
			),
		))
	}

	if state.Destination != nil {
		name := state.Destination.Name
		if name == "" {
			name = "Destination"
		}
		children = append(children, kml.Placemark(
			kml.Name(name),
			kml.Point(kml.Coordinates(coordinates([]geo.Point{state.Destination.Location})...)),
		))
	}

	if state.LastSample != nil {
		children = append(children, kml.Placemark(
			kml.Name("Position"),
			kml.Description(update.Instruction),
			kml.Point(kml.Coordinates(coordinates([]geo.Point{state.LastSample.Location})...)),
		))
	}

	if err := kml.KML(kml.Document(children...)).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to encode KML: %w", err)
	}
	return nil
}

func coordinates(points []geo.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, 0, len(points))
	for _, p := range points {
		coords = append(coords, kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude})
	}
	return coords
}
