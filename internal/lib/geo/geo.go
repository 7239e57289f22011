package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

// EarthRadius is the mean Earth radius used by the haversine formula, in meters
const EarthRadius = 6371000.0

// Distance calculates great-circle distance between two points using the Haversine formula
func Distance(p1, p2 Point) float64 {
	// If points are the same, distance is 0
	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0
	}

	lat1 := toRadians(p1.Latitude)
	lon1 := toRadians(p1.Longitude)
	lat2 := toRadians(p2.Latitude)
	lon2 := toRadians(p2.Longitude)

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// DistanceToPolyline returns the minimum distance from point to any vertex of the polyline.
// Vertices only, no projection onto segments: long segments overestimate the true distance.
// Returns +Inf when the polyline has fewer than 2 points.
func DistanceToPolyline(point Point, polyline []Point) float64 {
	if len(polyline) < 2 {
		return math.Inf(1)
	}

	minDistance := math.Inf(1)
	for _, vertex := range polyline {
		if d := Distance(point, vertex); d < minDistance {
			minDistance = d
		}
	}
	return minDistance
}

// DistanceToPolylineSegments returns the minimum cross-track distance from point to
// any segment of the polyline. Returns +Inf when the polyline has fewer than 2 points.
func DistanceToPolylineSegments(point Point, polyline []Point) float64 {
	if len(polyline) < 2 {
		return math.Inf(1)
	}

	minDistance := math.Inf(1)
	for i := 0; i < len(polyline)-1; i++ {
		if d := pointToSegmentDistance(point, polyline[i], polyline[i+1]); d < minDistance {
			minDistance = d
		}
	}
	return minDistance
}

// pointToSegmentDistance calculates perpendicular distance from point to line segment
func pointToSegmentDistance(point, segmentStart, segmentEnd Point) float64 {
	distanceToStart := Distance(point, segmentStart)
	distanceToEnd := Distance(point, segmentEnd)
	segmentLength := Distance(segmentStart, segmentEnd)

	// Degenerate or very short segment
	if segmentLength < 1 {
		return math.Min(distanceToStart, distanceToEnd)
	}

	lat1 := toRadians(segmentStart.Latitude)
	lon1 := toRadians(segmentStart.Longitude)
	lat2 := toRadians(segmentEnd.Latitude)
	lon2 := toRadians(segmentEnd.Longitude)
	lat3 := toRadians(point.Latitude)
	lon3 := toRadians(point.Longitude)

	d13 := distanceToStart / EarthRadius

	// Initial bearing from start to end
	y := math.Sin(lon2-lon1) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lon2-lon1)
	bearingSegment := math.Atan2(y, x)

	// Bearing from start to point
	y = math.Sin(lon3-lon1) * math.Cos(lat3)
	x = math.Cos(lat1)*math.Sin(lat3) - math.Sin(lat1)*math.Cos(lat3)*math.Cos(lon3-lon1)
	bearingPoint := math.Atan2(y, x)

	// Point lies behind the segment start
	if math.Cos(bearingPoint-bearingSegment) < 0 {
		return distanceToStart
	}

	dxt := math.Asin(math.Sin(d13) * math.Sin(bearingPoint-bearingSegment))
	crossTrack := math.Abs(dxt) * EarthRadius

	alongTrack := math.Acos(clamp(math.Cos(d13)/math.Cos(dxt), -1, 1)) * EarthRadius
	if alongTrack > segmentLength {
		return distanceToEnd
	}

	return crossTrack
}

// PolylineLength sums the great-circle length of every segment
func PolylineLength(polyline []Point) float64 {
	total := 0.0
	for i := 0; i < len(polyline)-1; i++ {
		total += Distance(polyline[i], polyline[i+1])
	}
	return total
}

// BoundsOf returns the bounding box of the given points, false if there are none
func BoundsOf(points []Point) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b := Bounds{SouthWest: points[0], NorthEast: points[0]}
	for _, p := range points[1:] {
		b.SouthWest.Latitude = math.Min(b.SouthWest.Latitude, p.Latitude)
		b.SouthWest.Longitude = math.Min(b.SouthWest.Longitude, p.Longitude)
		b.NorthEast.Latitude = math.Max(b.NorthEast.Latitude, p.Latitude)
		b.NorthEast.Longitude = math.Max(b.NorthEast.Longitude, p.Longitude)
	}
	return b, true
}

// DecodePolyline decodes Google polyline string to point sequence
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}
		if !IsValid(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// EncodePolyline encodes points with the Google polyline algorithm (precision 5)
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValid(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// IsValid validates latitude and longitude values
func IsValid(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
