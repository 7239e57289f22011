package location

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
)

// Trace is a recorded trip: where it started, where it was headed, and the fixes along the way
type Trace struct {
	Name        string        `yaml:"name"`
	Origin      TracePoint    `yaml:"origin" validate:"required"`
	Destination TraceTarget   `yaml:"destination" validate:"required"`
	Samples     []TraceSample `yaml:"samples" validate:"required,min=1,dive"`
}

// TracePoint is a coordinate in a trace file
type TracePoint struct {
	Lat float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

// TraceTarget is the named destination of a trace
type TraceTarget struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

// TraceSample is a single fix. Offset is the time since the start of the trace.
type TraceSample struct {
	Lat      float64       `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng      float64       `yaml:"lng" validate:"gte=-180,lte=180"`
	Offset   time.Duration `yaml:"offset" validate:"gte=0"`
	Accuracy *float64      `yaml:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Heading  *float64      `yaml:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	Speed    *float64      `yaml:"speed,omitempty" validate:"omitempty,gte=0"`
}

// LoadTrace reads and validates a YAML trace file
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return ParseTrace(data)
}

// ParseTrace decodes and validates a YAML trace
func ParseTrace(data []byte) (*Trace, error) {
	var trace Trace
	if err := yaml.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("failed to parse trace: %w", err)
	}
	if err := validator.New().Struct(trace); err != nil {
		return nil, fmt.Errorf("invalid trace: %w", err)
	}
	for i := 1; i < len(trace.Samples); i++ {
		if trace.Samples[i].Offset < trace.Samples[i-1].Offset {
			return nil, fmt.Errorf("invalid trace: sample %d goes back in time", i)
		}
	}
	return &trace, nil
}

// OriginPoint returns the trace origin
func (t *Trace) OriginPoint() geo.Point {
	return geo.Point{Latitude: t.Origin.Lat, Longitude: t.Origin.Lng}
}

// DestinationTarget returns the trace destination
func (t *Trace) DestinationTarget() navigation.Destination {
	return navigation.Destination{
		Location: geo.Point{Latitude: t.Destination.Lat, Longitude: t.Destination.Lng},
		Name:     t.Destination.Name,
	}
}

// Sample converts sample i to a navigation sample anchored at start
func (t *Trace) Sample(i int, start time.Time) navigation.Sample {
	s := t.Samples[i]
	return navigation.Sample{
		Location:  geo.Point{Latitude: s.Lat, Longitude: s.Lng},
		Accuracy:  s.Accuracy,
		Heading:   s.Heading,
		Speed:     s.Speed,
		Timestamp: start.Add(s.Offset),
	}
}
