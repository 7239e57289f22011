package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
)

const (
	// DefaultBaseURL is the public Routes API endpoint
	DefaultBaseURL = "https://routes.googleapis.com"

	fieldMask = "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline," +
		"routes.legs.steps.distanceMeters,routes.legs.steps.staticDuration,routes.legs.steps.endLocation," +
		"routes.legs.steps.navigationInstruction,routes.legs.endLocation"
)

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client computes turn-by-turn routes with Google Routes API v2
type Client struct {
	apiKey     string
	httpClient HTTPDoer
	baseURL    string
}

// NewClient creates a new Google Routes API client
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientWithHTTPDoer creates a client against baseURL using doer for transport
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{apiKey: apiKey, baseURL: baseURL, httpClient: doer}
}

// ComputeRoute requests a driving route from origin to destination through waypoints
func (c *Client) ComputeRoute(ctx context.Context, origin geo.Point, destination navigation.Destination, waypoints []geo.Point) (*navigation.Route, error) {
	ctx = logging.EnsureLogger(ctx)
	requestBody := map[string]interface{}{
		"origin":            waypoint(origin),
		"destination":       waypoint(destination.Location),
		"travelMode":        "DRIVE",
		"routingPreference": "TRAFFIC_AWARE",
		"languageCode":      "en-US",
		"units":             "METRIC",
	}
	if len(waypoints) > 0 {
		intermediates := make([]map[string]interface{}, 0, len(waypoints))
		for _, w := range waypoints {
			intermediates = append(intermediates, waypoint(w))
		}
		requestBody["intermediates"] = intermediates
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/directions/v2:computeRoutes", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Field mask is required or the API rejects the request
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response RoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	route, err := processRoute(response.Routes[0], destination)
	if err != nil {
		return nil, err
	}
	logging.Debugw(ctx, "google: route computed",
		"distance_m", route.Distance(),
		"duration", route.Duration(),
		"steps", route.StepCount())
	return route, nil
}

func waypoint(p geo.Point) map[string]interface{} {
	return map[string]interface{}{
		"location": map[string]interface{}{
			"latLng": map[string]interface{}{
				"latitude":  p.Latitude,
				"longitude": p.Longitude,
			},
		},
	}
}

// processRoute converts a Routes API route into a navigation route. Google
// attaches each instruction to the start of the step it introduces, so step i
// takes its maneuver from step i+1 and the final step ends with arrival.
func processRoute(route Route, destination navigation.Destination) (*navigation.Route, error) {
	duration, err := parseDuration(route.Duration)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration: %w", err)
	}

	geometry, err := geo.DecodePolyline(route.Polyline.EncodedPolyline)
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}

	var steps []navigation.Step
	for l, leg := range route.Legs {
		for i, step := range leg.Steps {
			stepDuration, err := parseDuration(step.StaticDuration)
			if err != nil {
				return nil, fmt.Errorf("failed to parse step duration: %w", err)
			}

			s := navigation.Step{
				Distance: float64(step.DistanceMeters),
				Duration: stepDuration,
			}
			end := step.EndLocation.LatLng.point()

			switch {
			case i+1 < len(leg.Steps):
				next := leg.Steps[i+1].NavigationInstruction
				typ, modifier := maneuverKind(next.Maneuver)
				s.Instruction = firstLine(next.Instructions)
				s.Maneuver = navigation.Maneuver{Type: typ, Modifier: modifier, Location: end}
			case l+1 < len(route.Legs):
				s.Instruction = fmt.Sprintf("Continue through waypoint %d", l+1)
				s.Maneuver = navigation.Maneuver{Type: "waypoint", Location: end}
			default:
				s.Instruction = arrivalInstruction(destination)
				s.Maneuver = navigation.Maneuver{Type: "arrive", Location: end}
			}
			steps = append(steps, s)
		}
	}

	return navigation.NewRoute(float64(route.DistanceMeters), duration, steps, geometry)
}

// maneuverKind splits a Routes API maneuver such as TURN_SLIGHT_LEFT into a
// type and modifier
func maneuverKind(m string) (string, string) {
	switch m {
	case "DEPART":
		return "depart", ""
	case "STRAIGHT":
		return "continue", "straight"
	case "NAME_CHANGE":
		return "new name", ""
	case "MERGE":
		return "merge", ""
	case "FERRY", "FERRY_TRAIN":
		return "ferry", ""
	}

	side := ""
	switch {
	case strings.HasSuffix(m, "_LEFT"):
		side = "left"
	case strings.HasSuffix(m, "_RIGHT"):
		side = "right"
	}

	switch {
	case strings.HasPrefix(m, "TURN_SLIGHT_"):
		return "turn", "slight " + side
	case strings.HasPrefix(m, "TURN_SHARP_"):
		return "turn", "sharp " + side
	case strings.HasPrefix(m, "TURN_"):
		return "turn", side
	case strings.HasPrefix(m, "UTURN_"):
		return "turn", "uturn"
	case strings.HasPrefix(m, "RAMP_"):
		return "off ramp", side
	case strings.HasPrefix(m, "ON_RAMP_"):
		return "on ramp", side
	case strings.HasPrefix(m, "FORK_"):
		return "fork", side
	case strings.HasPrefix(m, "ROUNDABOUT_"):
		return "roundabout", side
	}
	return "continue", ""
}

func arrivalInstruction(destination navigation.Destination) string {
	if destination.Name == "" {
		return "Arrive at your destination"
	}
	return "Arrive at " + destination.Name
}

// firstLine drops the secondary hints Google appends after a newline
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// parseDuration parses Google's duration format like "450s"
func parseDuration(durationStr string) (time.Duration, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if len(durationStr) > 1 && durationStr[len(durationStr)-1] == 's' {
		durationStr = durationStr[:len(durationStr)-1]
	}

	var seconds float64
	if _, err := fmt.Sscanf(durationStr, "%g", &seconds); err != nil {
		return 0, err
	}
	return time.Duration(math.Round(seconds * float64(time.Second))), nil
}

// RoutesResponse represents the API response structure
type RoutesResponse struct {
	Routes []Route `json:"routes"`
}

// Route represents a single route in the response
type Route struct {
	Duration       string   `json:"duration"`
	DistanceMeters int32    `json:"distanceMeters"`
	Polyline       Polyline `json:"polyline"`
	Legs           []Leg    `json:"legs"`
}

// Leg is the part of a route between two stops
type Leg struct {
	Steps       []Step   `json:"steps"`
	EndLocation Location `json:"endLocation"`
}

// Step is a single navigation instruction segment
type Step struct {
	DistanceMeters        int32                 `json:"distanceMeters"`
	StaticDuration        string                `json:"staticDuration"`
	EndLocation           Location              `json:"endLocation"`
	NavigationInstruction NavigationInstruction `json:"navigationInstruction"`
}

// NavigationInstruction describes the maneuver that starts a step
type NavigationInstruction struct {
	Maneuver     string `json:"maneuver"`
	Instructions string `json:"instructions"`
}

// Polyline represents an encoded polyline
type Polyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}

// Location wraps a LatLng
type Location struct {
	LatLng LatLng `json:"latLng"`
}

// LatLng is a WGS84 coordinate
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l LatLng) point() geo.Point {
	return geo.Point{Latitude: l.Latitude, Longitude: l.Longitude}
}
