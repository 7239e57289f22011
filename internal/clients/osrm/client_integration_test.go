package osrm

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
	baseURL := os.Getenv("OSRM_URL")
	if baseURL == "" {
		t.Skip("OSRM_URL not set")
	}

	client := NewClient(baseURL, DefaultProfile)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	route, err := client.ComputeRoute(ctx,
		geo.Point{Latitude: 38.5816, Longitude: -121.4944},
		navigation.Destination{Location: geo.Point{Latitude: 38.587, Longitude: -121.483}, Name: "Capitol"},
		nil)
	require.NoError(t, err)

	require.Greater(t, route.Distance(), 0.0)
	require.GreaterOrEqual(t, route.StepCount(), 1)
	require.GreaterOrEqual(t, len(route.Geometry()), 2)
	require.Equal(t, "Arrive at Capitol", route.Step(route.StepCount()-1).Instruction)
}
