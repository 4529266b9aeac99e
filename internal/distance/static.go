package distance

import (
	"context"
	"math"
	"sort"
	"strings"

	domain "github.com/lmdhub/api/internal/domain"
)

// Minutes of driving assumed per mile by the static table.
const staticMinutesPerMile = 2.5

// StaticResolver estimates distance from a fixed table of city offsets measured from the
// metro origin. It is deterministic and is used in development and tests.
type StaticResolver struct {
	offsets            map[string]float64
	cities             []string
	defaultOrigin      float64
	defaultDestination float64
}

// StaticOption customises a StaticResolver.
type StaticOption func(*StaticResolver)

// WithCityOffset adds or replaces a city's distance from the metro origin.
func WithCityOffset(city string, miles float64) StaticOption {
	return func(r *StaticResolver) {
		r.offsets[strings.ToLower(strings.TrimSpace(city))] = miles
	}
}

// WithDefaults sets the offsets used when an address names no known city.
func WithDefaults(origin, destination float64) StaticOption {
	return func(r *StaticResolver) {
		r.defaultOrigin = origin
		r.defaultDestination = destination
	}
}

// NewStaticResolver builds the Salt Lake valley table.
func NewStaticResolver(opts ...StaticOption) *StaticResolver {
	r := &StaticResolver{
		offsets: map[string]float64{
			"salt lake city": 0,
			"sandy":          15,
			"west jordan":    12,
			"park city":      35,
			"provo":          45,
		},
		defaultOrigin:      15,
		defaultDestination: 20,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cities = make([]string, 0, len(r.offsets))
	for city := range r.offsets {
		r.cities = append(r.cities, city)
	}
	// Longest names first so "west jordan" wins over a shorter overlapping name.
	sort.Slice(r.cities, func(i, j int) bool {
		if len(r.cities[i]) != len(r.cities[j]) {
			return len(r.cities[i]) > len(r.cities[j])
		}
		return r.cities[i] < r.cities[j]
	})
	return r
}

// ResolveDistance returns |offset(destination) − offset(origin)| miles.
func (r *StaticResolver) ResolveDistance(ctx context.Context, origin, destination string) (domain.DistanceResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.DistanceResult{}, err
	}
	if strings.TrimSpace(origin) == "" || strings.TrimSpace(destination) == "" {
		return domain.DistanceResult{}, ErrInvalidAddress
	}
	from, ok := r.offset(origin)
	if !ok {
		from = r.defaultOrigin
	}
	to, ok := r.offset(destination)
	if !ok {
		to = r.defaultDestination
	}
	miles := math.Abs(to - from)
	return domain.DistanceResult{
		Miles:           miles,
		DurationMinutes: math.Floor(miles * staticMinutesPerMile),
	}, nil
}

func (r *StaticResolver) offset(address string) (float64, bool) {
	lowered := strings.ToLower(address)
	for _, city := range r.cities {
		if strings.Contains(lowered, city) {
			return r.offsets[city], true
		}
	}
	return 0, false
}
