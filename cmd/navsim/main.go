package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dpup/prefab"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/navcore/internal/cache"
	"github.com/dpup/navcore/internal/clients/google"
	"github.com/dpup/navcore/internal/clients/osrm"
	"github.com/dpup/navcore/internal/config"
	"github.com/dpup/navcore/internal/lib/navigation"
	"github.com/dpup/navcore/internal/location"
	"github.com/dpup/navcore/internal/render"
	"github.com/dpup/navcore/internal/session"
)

func main() {
	var (
		tracePath = flag.String("trace", "", "YAML trace to replay (required)")
		kmlPath   = flag.String("kml", "", "Write a KML snapshot to this path on every update")
		provider  = flag.String("provider", "", "Routing provider: google or osrm (overrides config)")
		interval  = flag.Duration("interval", -1, "Delay between replayed samples (overrides config)")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || *tracePath == "" {
		fmt.Printf("Navigation Simulator\n\n")
		fmt.Printf("Plans a route for a recorded trace and replays the trace through a navigation session.\n\n")
		fmt.Printf("Usage: %s -trace=FILE [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nConfiguration is read from the navsim section of prefab.yaml and PF__NAVSIM__* env vars.\n")
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -trace=trip.yaml\n", os.Args[0])
		fmt.Printf("  %s -trace=trip.yaml -provider=google -kml=live.kml -interval=200ms\n", os.Args[0])
		if *tracePath == "" && !*help {
			os.Exit(2)
		}
		return
	}

	cfg := loadConfig()
	if *provider != "" {
		cfg.Routing.Provider = *provider
	}
	if *interval >= 0 {
		cfg.Replay.Interval = *interval
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && cfg.Routing.Google.APIKey == "" {
		cfg.Routing.Google.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	trace, err := location.LoadTrace(*tracePath)
	if err != nil {
		log.Fatalf("Failed to load trace: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.With(ctx, logging.NewDevLogger())

	routeCache := cache.NewCache()
	routeCache.StartPeriodicCleanup(ctx, time.Minute)
	defer func() {
		stats := routeCache.Stats()
		logging.Infow(ctx, "navsim: route cache",
			"entries", stats.TotalEntries,
			"fresh", stats.FreshEntries,
			"stale", stats.StaleEntries)
	}()
	router := cache.NewCachingRouter(buildRouter(cfg), routeCache, cfg.Routing.CacheTTL)

	sinks := []session.Sink{render.NewLogSink()}
	if *kmlPath != "" {
		sinks = append(sinks, render.NewKMLSink(*kmlPath))
	}

	s := session.New(router, cfg.Session(), sinks...)
	go func() {
		if err := s.Run(ctx); err != nil {
			log.Printf("Session stopped: %v", err)
		}
	}()

	if err := run(ctx, s, trace, cfg); err != nil {
		logging.Errorw(ctx, "navsim: simulation failed", "error", err)
		os.Exit(1)
	}
}

// run plans the trip, starts guidance and replays the trace until arrival or
// the trace runs out
func run(ctx context.Context, s *session.Session, trace *location.Trace, cfg *config.Config) error {
	updates, unsubscribe, err := s.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer unsubscribe()

	destination := trace.DestinationTarget()
	route, err := s.Plan(ctx, trace.OriginPoint(), destination)
	if err != nil {
		return err
	}
	fmt.Printf("Route to %s: %.0f m, %s, %d steps\n", destination.Name, route.Distance(), route.Duration().Round(time.Second), route.StepCount())

	if err := s.Confirm(ctx); err != nil {
		return err
	}

	source := location.NewReplaySource(trace, cfg.Replay.Interval, nil)
	defer source.Stop()

	followErr := make(chan error, 1)
	go func() { followErr <- s.Follow(ctx, source) }()

	lastInstruction := ""
	show := func(u session.Update) bool {
		if u.Instruction != "" && u.Instruction != lastInstruction {
			lastInstruction = u.Instruction
			fmt.Printf("  %s\n", u.Instruction)
		}
		switch u.Event {
		case session.EventRerouteRequested:
			fmt.Printf("  Off route, recalculating...\n")
		case session.EventRerouteFailed:
			fmt.Printf("  Could not calculate route, will retry\n")
		case session.EventArrived:
			fmt.Printf("Arrived at %s\n", destination.Name)
			return true
		}
		return false
	}

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if show(u) {
				return nil
			}
		case err := <-followErr:
			if err != nil {
				return err
			}
			select {
			case u, ok := <-updates:
				if ok && show(u) {
					return nil
				}
			default:
			}
			snap, err := s.State(ctx)
			if err != nil {
				return err
			}
			if snap.State.Mode == navigation.ModeActive {
				fmt.Printf("Trace ended %.0f m from %s\n", snap.State.RemainingDistance, destination.Name)
				return s.End(ctx)
			}
			return nil
		}
	}
}

func buildRouter(cfg *config.Config) navigation.Router {
	switch cfg.Routing.Provider {
	case config.ProviderGoogle:
		return google.NewClientWithHTTPDoer(cfg.Routing.Google.APIKey, cfg.Routing.Google.BaseURL, httpClient(cfg.Routing.Google.Timeout))
	default:
		return osrm.NewClientWithHTTPDoer(cfg.Routing.OSRM.BaseURL, cfg.Routing.OSRM.Profile, httpClient(cfg.Routing.OSRM.Timeout))
	}
}

// loadConfig loads configuration using Prefab's config system
// Configuration is loaded from prefab.yaml and environment variables with PF__ prefix
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	if err := prefab.Config.Unmarshal("navsim", appConfig); err != nil {
		log.Fatalf("Failed to unmarshal navsim section: %v", err)
	}

	return appConfig
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
