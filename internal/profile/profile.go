package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/config"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/geo"
	"github.com/woozymasta/go3dep/internal/metrics"
	"github.com/woozymasta/go3dep/internal/raster"
)

// ErrInvalidInput is returned for non-positive spacing or resolution.
var ErrInvalidInput = errors.New("invalid profile input")

// DEMProvider returns a DEM covering bound at roughly res meters per cell.
type DEMProvider interface {
	DEM(ctx context.Context, bound orb.Bound, res float64, c crs.CRS) (*raster.Raster, error)
}

// Options are the per-call parameters of a profile.
type Options struct {
	// CRS of the input geometry and of the output coordinates. WGS84 when empty.
	CRS crs.CRS
	// Spacing between profile points in meters.
	Spacing float64
	// Resolution of the DEM in meters.
	Resolution float64
}

// Profiler turns line geometries into elevation profiles.
type Profiler struct {
	DEM          DEMProvider
	Working      crs.CRS
	Refiner      Refiner
	BufferFactor float64
	Method       raster.Method
}

// NewProfiler returns a profiler configured from cfg.
func NewProfiler(dem DEMProvider, cfg config.Profile) (*Profiler, error) {
	working, err := crs.Parse(cfg.WorkingCRS)
	if err != nil {
		return nil, fmt.Errorf("working CRS: %w", err)
	}
	if working.IsGeographic() {
		return nil, fmt.Errorf("working CRS %s must be projected", working)
	}
	method, err := raster.ParseMethod(cfg.Method)
	if err != nil {
		return nil, err
	}

	return &Profiler{
		DEM:          dem,
		Working:      working,
		Refiner:      Refiner{MaxRefinements: cfg.MaxRefinements, MaxSamples: cfg.MaxSamples},
		BufferFactor: cfg.BufferFactor,
		Method:       method,
	}, nil
}

// Profile samples elevations every opts.Spacing meters along g.
func (p *Profiler) Profile(ctx context.Context, g orb.Geometry, opts Options) (*Profile, error) {
	if !(opts.Spacing > 0) {
		return nil, fmt.Errorf("%w: spacing must be positive, got %g", ErrInvalidInput, opts.Spacing)
	}
	if !(opts.Resolution > 0) {
		return nil, fmt.Errorf("%w: resolution must be positive, got %g", ErrInvalidInput, opts.Resolution)
	}
	outCRS := opts.CRS
	if outCRS == "" {
		outCRS = crs.WGS84
	}

	path, err := geo.ToPath(g)
	if err != nil {
		return nil, err
	}

	working, err := crs.TransformLine(path, outCRS, p.Working)
	if err != nil {
		return nil, fmt.Errorf("reproject path: %w", err)
	}

	if _, err := p.Refiner.Check(working, opts.Spacing); err != nil {
		return nil, err
	}

	bound := geo.Buffer(working.Bound(), p.BufferFactor*opts.Resolution)
	dem, err := p.DEM.DEM(ctx, bound, opts.Resolution, p.Working)
	if err != nil {
		return nil, err
	}
	demCRS := dem.CRS
	if demCRS == "" {
		demCRS = p.Working
	}

	s, iters, err := p.Refiner.Refine(ctx, working, opts.Spacing)
	if err != nil {
		return nil, err
	}
	metrics.RefinementIterations.Observe(float64(iters))

	dx, dy, err := crs.Transform(s.X, s.Y, p.Working, demCRS)
	if err != nil {
		return nil, fmt.Errorf("reproject samples to DEM: %w", err)
	}
	elevation := Sample(dem, dx, dy, p.Method)

	ox, oy, err := crs.Transform(s.X, s.Y, p.Working, outCRS)
	if err != nil {
		return nil, fmt.Errorf("reproject samples to output: %w", err)
	}

	prof, err := Assemble(elevation, ox, oy, s.Distance, outCRS)
	if err != nil {
		return nil, err
	}
	metrics.ProfilePoints.Observe(float64(prof.Len()))

	log.Debug().
		Int("points", prof.Len()).
		Int("iterations", iters).
		Float64("spacing", opts.Spacing).
		Float64("length", geo.Length(working)).
		Str("method", p.Method.String()).
		Msg("Elevation profile assembled")

	return prof, nil
}
