package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dpup/navcore/internal/clients/google"
	"github.com/dpup/navcore/internal/clients/osrm"
	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
)

func main() {
	var (
		provider  = flag.String("provider", "osrm", "Routing provider: google or osrm")
		apiKey    = flag.String("api-key", "", "Google Routes API key (or set GOOGLE_API_KEY env var)")
		osrmURL   = flag.String("osrm-url", osrm.DefaultBaseURL, "OSRM server base URL")
		profile   = flag.String("profile", osrm.DefaultProfile, "OSRM profile")
		originStr = flag.String("origin", "38.581600,-121.494400", "Origin coordinates (lat,lon)")
		destStr   = flag.String("dest", "38.587000,-121.483000", "Destination coordinates (lat,lon)")
		name      = flag.String("name", "", "Destination name")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Printf("Routing Test Tool\n\n")
		fmt.Printf("Computes a turn-by-turn route and prints its steps.\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -osrm-url=http://localhost:5000\n", os.Args[0])
		fmt.Printf("  %s -provider=google -api-key=YOUR_KEY\n", os.Args[0])
		fmt.Printf("  %s -origin=\"37.7749,-122.4194\" -dest=\"37.8044,-122.2712\"\n", os.Args[0])
		return
	}

	origin, err := parsePoint(*originStr)
	if err != nil {
		log.Fatalf("Invalid origin coordinates: %v", err)
	}
	destPoint, err := parsePoint(*destStr)
	if err != nil {
		log.Fatalf("Invalid destination coordinates: %v", err)
	}

	var router navigation.Router
	switch *provider {
	case "google":
		key := *apiKey
		if key == "" {
			key = os.Getenv("GOOGLE_API_KEY")
		}
		if key == "" {
			log.Fatal("Google Routes API key required. Use -api-key flag or GOOGLE_API_KEY env var")
		}
		router = google.NewClient(key)
	case "osrm":
		router = osrm.NewClient(*osrmURL, *profile)
	default:
		log.Fatalf("Unknown provider %q", *provider)
	}

	destination := navigation.Destination{Location: destPoint, Name: *name}

	fmt.Printf("Routing Test (%s)\n", *provider)
	fmt.Printf("======================\n")
	fmt.Printf("Origin: %.6f, %.6f\n", origin.Latitude, origin.Longitude)
	fmt.Printf("Destination: %.6f, %.6f\n\n", destPoint.Latitude, destPoint.Longitude)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	route, err := router.ComputeRoute(ctx, origin, destination, nil)
	if err != nil {
		log.Fatalf("ComputeRoute failed: %v", err)
	}

	fmt.Printf("Distance: %.2f km\n", route.Distance()/1000.0)
	fmt.Printf("Duration: %.1f minutes\n", route.Duration().Minutes())
	fmt.Printf("Geometry: %d points, %.2f km\n\n", len(route.Geometry()), geo.PolylineLength(route.Geometry())/1000.0)

	for i, step := range route.Steps() {
		m := step.Maneuver
		fmt.Printf("%2d. %-45s %7.0f m %6s  [%s %s] @ %.5f,%.5f\n",
			i+1, step.Instruction, step.Distance, step.Duration.Round(time.Second),
			m.Type, m.Modifier, m.Location.Latitude, m.Location.Longitude)
	}
}

// parsePoint reads a "lat,lon" pair
func parsePoint(s string) (geo.Point, error) {
	var lat, lon float64
	if _, err := fmt.Sscanf(s, "%f,%f", &lat, &lon); err != nil {
		return geo.Point{}, err
	}
	return geo.NewPoint(lat, lon)
}
