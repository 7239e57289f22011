package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
)

func TestComputeRoute_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	key := os.Getenv("GOOGLE_API_KEY")
	if key == "" {
		t.Skip("GOOGLE_API_KEY not set")
	}

	client := NewClient(key)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Seattle to Portland
	route, err := client.ComputeRoute(ctx,
		geo.Point{Latitude: 47.6062, Longitude: -122.3321},
		navigation.Destination{Location: geo.Point{Latitude: 45.5152, Longitude: -122.6784}, Name: "Portland"},
		nil)
	require.NoError(t, err)

	require.Greater(t, route.Duration(), time.Hour, "Duration should be > 1 hour for 173-mile route")
	require.Less(t, route.Duration(), 4*time.Hour, "Duration should be < 4 hours in normal traffic")
	require.Greater(t, route.Distance(), 250000.0, "Distance should be > 250km")
	require.Less(t, route.Distance(), 350000.0, "Distance should be < 350km")
	require.Greater(t, route.StepCount(), 3)
	require.Equal(t, "arrive", route.Step(route.StepCount()-1).Maneuver.Type)
}
