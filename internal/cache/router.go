package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/navcore/internal/lib/geo"
	"github.com/dpup/navcore/internal/lib/navigation"
)

// DefaultRouteTTL is how long a computed route is reused
const DefaultRouteTTL = 30 * time.Second

// CachingRouter reuses routes for repeated identical requests. Origins are
// rounded to five decimal places (about a meter) so jitter in a stationary fix
// still hits. Failures are never cached.
type CachingRouter struct {
	next  navigation.Router
	cache *Cache
	ttl   time.Duration
}

// NewCachingRouter wraps next with cache
func NewCachingRouter(next navigation.Router, cache *Cache, ttl time.Duration) *CachingRouter {
	if ttl <= 0 {
		ttl = DefaultRouteTTL
	}
	return &CachingRouter{next: next, cache: cache, ttl: ttl}
}

// ComputeRoute returns a cached route or delegates to the wrapped router
func (r *CachingRouter) ComputeRoute(ctx context.Context, origin geo.Point, destination navigation.Destination, waypoints []geo.Point) (*navigation.Route, error) {
	ctx = logging.EnsureLogger(ctx)
	key := routeKey(origin, destination, waypoints)

	var cached navigation.Route
	found, err := r.cache.Get(key, &cached)
	if err != nil {
		logging.Warnw(ctx, "route cache: dropping unreadable entry", "key", key, "error", err)
		r.cache.Delete(key)
	} else if found {
		logging.Debugw(ctx, "route cache: hit", "key", key)
		return &cached, nil
	}

	route, err := r.next.ComputeRoute(ctx, origin, destination, waypoints)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(key, route, r.ttl, "router"); err != nil {
		logging.Warnw(ctx, "route cache: could not store route", "key", key, "error", err)
	}
	return route, nil
}

func routeKey(origin geo.Point, destination navigation.Destination, waypoints []geo.Point) string {
	var b strings.Builder
	fmt.Fprintf(&b, "route:%.5f,%.5f>%.6f,%.6f", origin.Latitude, origin.Longitude, destination.Location.Latitude, destination.Location.Longitude)
	for _, w := range waypoints {
		fmt.Fprintf(&b, "|%.6f,%.6f", w.Latitude, w.Longitude)
	}
	if destination.Name != "" {
		fmt.Fprintf(&b, "#%s", destination.Name)
	}
	return b.String()
}
