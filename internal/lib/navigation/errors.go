package navigation

import (
	"github.com/dpup/prefab/errors"
	"google.golang.org/grpc/codes"
)

var (
	// ErrInvalidTransition signals a caller bug, e.g. StartActive without a previewed route
	ErrInvalidTransition = errors.NewC("navigation: invalid transition", codes.FailedPrecondition)

	// ErrInvalidRoute is returned when a route violates the route model invariants
	ErrInvalidRoute = errors.NewC("navigation: invalid route", codes.InvalidArgument)

	// ErrRoutingFailure wraps failures of the routing collaborator
	ErrRoutingFailure = errors.NewC("navigation: could not calculate route", codes.Unavailable)
)
