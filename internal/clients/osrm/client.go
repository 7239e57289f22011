// Package osrm computes routes against an OSRM routing server.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
)

const (
	DefaultBaseURL = "https://router.project-osrm.org"
	DefaultProfile = "driving"
)

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client requests routes from the OSRM route service
type Client struct {
	baseURL    string
	profile    string
	httpClient HTTPDoer
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL, profile string) *Client {
	return NewClientWithHTTPDoer(baseURL, profile, &http.Client{Timeout: 30 * time.Second})
}

// NewClientWithHTTPDoer creates a client using doer for transport
func NewClientWithHTTPDoer(baseURL, profile string, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if profile == "" {
		profile = DefaultProfile
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    profile,
		httpClient: doer,
	}
}

// ComputeRoute requests a route from origin to destination through waypoints
func (c *Client) ComputeRoute(ctx context.Context, origin geo.Point, destination navigation.Destination, waypoints []geo.Point) (*navigation.Route, error) {
	ctx = logging.EnsureLogger(ctx)
	stops := make([]string, 0, len(waypoints)+2)
	stops = append(stops, lngLat(origin))
	for _, w := range waypoints {
		stops = append(stops, lngLat(w))
	}
	stops = append(stops, lngLat(destination.Location))

	query := url.Values{}
	query.Set("steps", "true")
	query.Set("geometries", "geojson")
	query.Set("overview", "full")

	endpoint := fmt.Sprintf("%s/route/v1/%s/%s?%s", c.baseURL, c.profile, strings.Join(stops, ";"), query.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	// OSRM reports NoRoute and friends with a 400 and a JSON body
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response RouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Code != "Ok" {
		return nil, fmt.Errorf("routing failed: %s: %s", response.Code, response.Message)
	}
	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	route, err := processRoute(response.Routes[0], destination)
	if err != nil {
		return nil, err
	}
	logging.Debugw(ctx, "osrm: route computed",
		"profile", c.profile,
		"distance_m", route.Distance(),
		"duration", route.Duration(),
		"steps", route.StepCount())
	return route, nil
}

func lngLat(p geo.Point) string {
	return strconv.FormatFloat(p.Longitude, 'f', -1, 64) + "," + strconv.FormatFloat(p.Latitude, 'f', -1, 64)
}

// processRoute converts an OSRM route. OSRM places each maneuver at the start
// of its step and ends every leg with a zero-length arrive step, so step i takes
// its maneuver from step i+1 and the trailing arrive step is folded in.
func processRoute(route Route, destination navigation.Destination) (*navigation.Route, error) {
	geometry := make([]geo.Point, 0, len(route.Geometry.Coordinates))
	for _, c := range route.Geometry.Coordinates {
		if len(c) < 2 {
			return nil, fmt.Errorf("malformed geometry coordinate")
		}
		geometry = append(geometry, geo.Point{Latitude: c[1], Longitude: c[0]})
	}

	var steps []navigation.Step
	for l, leg := range route.Legs {
		finalLeg := l == len(route.Legs)-1
		for i := 0; i+1 < len(leg.Steps); i++ {
			step, next := leg.Steps[i], leg.Steps[i+1]
			m := navigation.Maneuver{
				Type:     next.Maneuver.Type,
				Modifier: next.Maneuver.Modifier,
				Location: next.Maneuver.point(),
			}
			instruction := describe(next)
			if next.Maneuver.Type == "arrive" {
				if finalLeg {
					instruction = arrivalInstruction(destination)
				} else {
					m.Type = "waypoint"
					instruction = fmt.Sprintf("Continue through waypoint %d", l+1)
				}
			}
			steps = append(steps, navigation.Step{
				Distance:    step.Distance,
				Duration:    seconds(step.Duration),
				Instruction: instruction,
				Maneuver:    m,
			})
		}
	}

	return navigation.NewRoute(route.Distance, seconds(route.Duration), steps, geometry)
}

// describe renders a maneuver as a spoken-style instruction
func describe(s Step) string {
	m := s.Maneuver
	onto := ""
	if s.Name != "" {
		onto = " onto " + s.Name
	}
	switch m.Type {
	case "turn", "end of road":
		if m.Modifier == "uturn" {
			return "Make a U-turn" + onto
		}
		return "Turn " + m.Modifier + onto
	case "new name":
		return "Continue" + onto
	case "merge":
		return "Merge" + onto
	case "on ramp":
		return "Take the ramp" + onto
	case "off ramp":
		return "Take the exit" + onto
	case "fork":
		return "Keep " + m.Modifier + " at the fork" + onto
	case "roundabout", "rotary":
		if m.Exit > 0 {
			return fmt.Sprintf("At the roundabout, take exit %d%s", m.Exit, onto)
		}
		return "Enter the roundabout" + onto
	default:
		if m.Modifier != "" {
			return "Continue " + m.Modifier + onto
		}
		return "Continue" + onto
	}
}

func arrivalInstruction(destination navigation.Destination) string {
	if destination.Name == "" {
		return "Arrive at your destination"
	}
	return "Arrive at " + destination.Name
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// RouteResponse is the body of a route/v1 response
type RouteResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []Route `json:"routes"`
}

// Route is a single OSRM route
type Route struct {
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Geometry Geometry `json:"geometry"`
	Legs     []Leg    `json:"legs"`
}

// Geometry is a GeoJSON LineString
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// Leg is the part of a route between two stops
type Leg struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Steps    []Step  `json:"steps"`
}

// Step is one maneuver and the road travelled after it
type Step struct {
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Name     string   `json:"name"`
	Maneuver Maneuver `json:"maneuver"`
}

// Maneuver describes the action at the start of a step
type Maneuver struct {
	Type     string    `json:"type"`
	Modifier string    `json:"modifier,omitempty"`
	Location []float64 `json:"location"`
	Exit     int       `json:"exit,omitempty"`
}

func (m Maneuver) point() geo.Point {
	if len(m.Location) < 2 {
		return geo.Point{}
	}
	return geo.Point{Latitude: m.Location[1], Longitude: m.Location[0]}
}
