// Package distance resolves road distance between two addresses for quoting.
package distance

import (
	"context"
	"errors"

	domain "github.com/lmdhub/api/internal/domain"
)

const metersPerMile = 1609.344

var (
	// ErrInvalidAddress is returned when origin or destination is blank.
	ErrInvalidAddress = errors.New("distance: origin and destination are required")
	// ErrNoRoute is returned when the provider cannot route between the two addresses.
	ErrNoRoute = errors.New("distance: no route between addresses")
	// ErrProviderUnavailable wraps transport and quota failures of the upstream provider.
	ErrProviderUnavailable = errors.New("distance: provider unavailable")
)

// Resolver is implemented by every distance source in this package.
type Resolver interface {
	ResolveDistance(ctx context.Context, origin, destination string) (domain.DistanceResult, error)
}
