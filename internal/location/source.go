// Package location provides position sources that feed navigation sessions.
package location

import (
	"context"

	"github.com/dpup/prefab/errors"
	"google.golang.org/grpc/codes"

	"github.com/dpup/navcore/internal/lib/navigation"
)

var (
	// ErrPermissionDenied means the platform refused access to position fixes
	ErrPermissionDenied = errors.NewC("location: permission denied", codes.PermissionDenied)
	// ErrUnavailable means no position provider could be reached
	ErrUnavailable = errors.NewC("location: unavailable", codes.Unavailable)
	// ErrTimeout means no fix arrived within the provider's deadline
	ErrTimeout = errors.NewC("location: timeout", codes.DeadlineExceeded)
)

// Source delivers position samples until ctx is done or the source is exhausted,
// at which point the channel is closed. Unsubscribing is canceling ctx.
type Source interface {
	Subscribe(ctx context.Context) (<-chan navigation.Sample, error)
}
