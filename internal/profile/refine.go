package profile

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/geo"
)

// ErrResolutionUnattainable is returned when densifying the spline never
// fills every distance bin.
var ErrResolutionUnattainable = errors.New("profile resolution unattainable")

const (
	// DefaultOversample is the initial number of spline samples per bin.
	DefaultOversample = 100
	// DefaultMaxSamples caps the spline samples of a single evaluation.
	DefaultMaxSamples = 4_000_000
)

// Refiner densifies a spline until each distance bin holds a sample.
type Refiner struct {
	// Oversample sets the initial samples per bin, DefaultOversample when zero.
	Oversample int
	// MaxRefinements caps how many times the sample count is doubled.
	MaxRefinements int
	// MaxSamples caps the spline samples per evaluation, DefaultMaxSamples when zero.
	MaxSamples int
}

func (r Refiner) oversample() int {
	if r.Oversample <= 0 {
		return DefaultOversample
	}
	return r.Oversample
}

func (r Refiner) maxSamples() int {
	if r.MaxSamples <= 0 {
		return DefaultMaxSamples
	}
	return r.MaxSamples
}

// Check validates spacing and returns the initial sample count for path.
// A count above the sample ceiling is ErrResolutionUnattainable.
func (r Refiner) Check(path orb.LineString, spacing float64) (int, error) {
	if !(spacing > 0) {
		return 0, fmt.Errorf("%w: spacing must be positive, got %g", ErrInvalidInput, spacing)
	}

	bins := max(math.Ceil(geo.Length(path)/spacing), 1)
	if n := bins * float64(r.oversample()); n > float64(r.maxSamples()) {
		return 0, fmt.Errorf("%w: spacing %g needs %.0f spline samples, limit is %d",
			ErrResolutionUnattainable, spacing, n, r.maxSamples())
	}
	return int(bins) * r.oversample(), nil
}

// Refine returns one spline sample per spacing interval along path and the
// number of spline evaluations it took.
func (r Refiner) Refine(ctx context.Context, path orb.LineString, spacing float64) (*Spline, int, error) {
	n, err := r.Check(path, spacing)
	if err != nil {
		return nil, 0, err
	}
	for iter := 1; ; iter++ {
		s := NewSpline(path, n)
		idx := Bucket(s.Distance, spacing)
		if !HasMissing(idx) {
			return s.Select(idx), iter, nil
		}

		if iter > r.MaxRefinements || 2*n > r.maxSamples() {
			return nil, iter, fmt.Errorf("%w: bins still empty with %d samples after %d refinements",
				ErrResolutionUnattainable, n, iter-1)
		}
		if err := ctx.Err(); err != nil {
			return nil, iter, err
		}

		log.Trace().
			Int("samples", n).
			Int("iteration", iter).
			Msg("Empty distance bins, doubling spline samples")
		n *= 2
	}
}
