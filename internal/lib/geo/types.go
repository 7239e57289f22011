package geo

// Point represents a geographic coordinate (WGS84, degrees)
type Point struct {
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lng" yaml:"lng"`
}

// Bounds is the axis-aligned lat/lng box enclosing a set of points
type Bounds struct {
	SouthWest Point `json:"south_west"`
	NorthEast Point `json:"north_east"`
}

// Center returns the midpoint of the box in degree space
func (b Bounds) Center() Point {
	return Point{
		Latitude:  (b.SouthWest.Latitude + b.NorthEast.Latitude) / 2,
		Longitude: (b.SouthWest.Longitude + b.NorthEast.Longitude) / 2,
	}
}

// PolylineMetric measures the distance from a point to a polyline in meters.
// DistanceToPolyline and DistanceToPolylineSegments both satisfy it.
type PolylineMetric func(point Point, polyline []Point) float64
