package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
	"github.com/dpup/navcore/internal/lib/reroute"
	"github.com/dpup/navcore/internal/session"
)

// Geometry modes for the off-route test
const (
	GeometryVertex  = "vertex"
	GeometrySegment = "segment"
)

// Routing providers
const (
	ProviderGoogle = "google"
	ProviderOSRM   = "osrm"
)

// Config represents the complete navsim configuration
type Config struct {
	Navigation NavigationConfig `yaml:"navigation" koanf:"navigation"`
	Routing    RoutingConfig    `yaml:"routing" koanf:"routing"`
	Replay     ReplayConfig     `yaml:"replay" koanf:"replay"`
}

// NavigationConfig holds state machine thresholds and reroute timing
type NavigationConfig struct {
	StepAdvanceThreshold float64       `yaml:"step_advance_threshold" koanf:"step_advance_threshold" validate:"gt=0"`
	ArrivalThreshold     float64       `yaml:"arrival_threshold" koanf:"arrival_threshold" validate:"gt=0"`
	OffRouteThreshold    float64       `yaml:"off_route_threshold" koanf:"off_route_threshold" validate:"gt=0"`
	OffRouteGeometry     string        `yaml:"off_route_geometry" koanf:"off_route_geometry" validate:"oneof=vertex segment"`
	RerouteDebounce      time.Duration `yaml:"reroute_debounce" koanf:"reroute_debounce" validate:"gt=0"`
	RerouteTimeout       time.Duration `yaml:"reroute_timeout" koanf:"reroute_timeout" validate:"gt=0"`
}

// RoutingConfig selects and configures the routing service
type RoutingConfig struct {
	Provider string        `yaml:"provider" koanf:"provider" validate:"oneof=google osrm"`
	Google   GoogleConfig  `yaml:"google" koanf:"google"`
	OSRM     OSRMConfig    `yaml:"osrm" koanf:"osrm"`
	CacheTTL time.Duration `yaml:"cache_ttl" koanf:"cache_ttl" validate:"gte=0"`
}

// GoogleConfig holds Google Routes API settings
type GoogleConfig struct {
	APIKey  string        `yaml:"api_key" koanf:"api_key"`
	BaseURL string        `yaml:"base_url" koanf:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" koanf:"timeout" validate:"gte=0"`
}

// OSRMConfig holds OSRM server settings
type OSRMConfig struct {
	BaseURL string        `yaml:"base_url" koanf:"base_url" validate:"omitempty,url"`
	Profile string        `yaml:"profile" koanf:"profile" validate:"omitempty,oneof=driving walking cycling car foot bike"`
	Timeout time.Duration `yaml:"timeout" koanf:"timeout" validate:"gte=0"`
}

// ReplayConfig controls trace playback
type ReplayConfig struct {
	Interval time.Duration `yaml:"interval" koanf:"interval" validate:"gte=0"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Navigation: NavigationConfig{
			StepAdvanceThreshold: navigation.DefaultStepAdvanceThreshold,
			ArrivalThreshold:     navigation.DefaultArrivalThreshold,
			OffRouteThreshold:    navigation.DefaultOffRouteThreshold,
			OffRouteGeometry:     GeometryVertex,
			RerouteDebounce:      reroute.DefaultDebounce,
			RerouteTimeout:       reroute.DefaultTimeout,
		},
		Routing: RoutingConfig{
			Provider: ProviderOSRM,
			Google: GoogleConfig{
				BaseURL: "https://routes.googleapis.com",
				Timeout: 30 * time.Second,
			},
			OSRM: OSRMConfig{
				BaseURL: "https://router.project-osrm.org",
				Profile: "driving",
				Timeout: 30 * time.Second,
			},
			CacheTTL: 30 * time.Second,
		},
		Replay: ReplayConfig{
			Interval: time.Second,
		},
	}
}

// Validate checks field ranges and cross-field requirements
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Routing.Provider == ProviderGoogle && c.Routing.Google.APIKey == "" {
		return fmt.Errorf("invalid configuration: routing.google.api_key is required for the google provider")
	}
	return nil
}

// Session builds the session settings for this configuration
func (c *Config) Session() session.Config {
	cfg := session.DefaultConfig()
	cfg.Navigation = navigation.Config{
		StepAdvanceThreshold: c.Navigation.StepAdvanceThreshold,
		ArrivalThreshold:     c.Navigation.ArrivalThreshold,
		OffRouteThreshold:    c.Navigation.OffRouteThreshold,
		PolylineDistance:     c.polylineMetric(),
	}
	cfg.Reroute = reroute.Config{
		Debounce: c.Navigation.RerouteDebounce,
		Timeout:  c.Navigation.RerouteTimeout,
	}
	return cfg
}

func (c *Config) polylineMetric() geo.PolylineMetric {
	if c.Navigation.OffRouteGeometry == GeometrySegment {
		return geo.DistanceToPolylineSegments
	}
	return geo.DistanceToPolyline
}
