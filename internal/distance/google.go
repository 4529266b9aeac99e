package distance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	domain "github.com/lmdhub/api/internal/domain"
)

const defaultMatrixTimeout = 5 * time.Second

type matrixClient interface {
	DistanceMatrix(ctx context.Context, r *maps.DistanceMatrixRequest) (*maps.DistanceMatrixResponse, error)
}

// GoogleMatrixConfig configures the Distance Matrix adapter.
type GoogleMatrixConfig struct {
	APIKey  string
	Timeout time.Duration
	Client  matrixClient
}

// GoogleMatrixResolver resolves driving distance through the Google Distance Matrix API.
type GoogleMatrixResolver struct {
	client  matrixClient
	timeout time.Duration
}

// NewGoogleMatrixResolver builds the adapter. Either APIKey or Client must be provided.
func NewGoogleMatrixResolver(cfg GoogleMatrixConfig) (*GoogleMatrixResolver, error) {
	client := cfg.Client
	if client == nil {
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return nil, errors.New("distance: google maps api key is required")
		}
		c, err := maps.NewClient(maps.WithAPIKey(key))
		if err != nil {
			return nil, fmt.Errorf("distance: create maps client: %w", err)
		}
		client = c
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultMatrixTimeout
	}
	return &GoogleMatrixResolver{
		client:  client,
		timeout: timeout,
	}, nil
}

// ResolveDistance requests a single driving element in imperial units.
func (r *GoogleMatrixResolver) ResolveDistance(ctx context.Context, origin, destination string) (domain.DistanceResult, error) {
	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)
	if origin == "" || destination == "" {
		return domain.DistanceResult{}, ErrInvalidAddress
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := &maps.DistanceMatrixRequest{
		Origins:      []string{origin},
		Destinations: []string{destination},
		Mode:         maps.TravelModeDriving,
		Units:        maps.UnitsImperial,
	}
	resp, err := r.client.DistanceMatrix(ctx, req)
	if err != nil {
		return domain.DistanceResult{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if resp == nil || len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return domain.DistanceResult{}, fmt.Errorf("%w: empty distance matrix", ErrNoRoute)
	}

	element := resp.Rows[0].Elements[0]
	switch element.Status {
	case "OK":
	case "NOT_FOUND", "ZERO_RESULTS":
		return domain.DistanceResult{}, fmt.Errorf("%w: %s", ErrNoRoute, strings.ToLower(element.Status))
	default:
		return domain.DistanceResult{}, fmt.Errorf("%w: element status %s", ErrProviderUnavailable, element.Status)
	}

	return domain.DistanceResult{
		Miles:           roundHundredths(float64(element.Distance.Meters) / metersPerMile),
		DurationMinutes: element.Duration.Minutes(),
	}, nil
}

// roundHundredths keeps provider distances to 0.01 mile so equal routes price identically.
func roundHundredths(v float64) float64 {
	return math.Round(v*100) / 100
}
