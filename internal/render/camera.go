// Package render turns session updates into output a person can follow: log
// lines and KML snapshots, with a camera hint for map views.
package render

import (
	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
)

// Camera is where a map view should look
type Camera struct {
	Center geo.Point   `json:"center"`
	Bounds *geo.Bounds `json:"bounds,omitempty"`
}

// CameraFor centers on the traveler and frames the part of the route still
// ahead. Without a route it centers on the last known origin.
func CameraFor(state navigation.State) Camera {
	if state.Route == nil {
		return Camera{Center: state.Origin}
	}

	center := state.Origin
	if state.LastSample == nil && center == (geo.Point{}) {
		center = state.Route.Start()
	}

	ahead := remainingGeometry(state.Route.Geometry(), center)
	if state.Destination != nil {
		ahead = append(ahead, state.Destination.Location)
	}
	bounds, ok := geo.BoundsOf(append(ahead, center))
	if !ok {
		return Camera{Center: center}
	}
	return Camera{Center: center, Bounds: &bounds}
}

// remainingGeometry drops the vertices behind the one nearest to position
func remainingGeometry(geometry []geo.Point, position geo.Point) []geo.Point {
	nearest := 0
	best := -1.0
	for i, p := range geometry {
		d := geo.Distance(position, p)
		if best < 0 || d < best {
			best = d
			nearest = i
		}
	}
	return geometry[nearest:]
}
