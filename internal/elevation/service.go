// Package elevation retrieves topography from the USGS 3D Elevation Program
// services: gridded maps over areas, elevations of points and grids,
// availability of source datasets, and elevation profiles along lines.
package elevation

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/config"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/geo"
	"github.com/woozymasta/go3dep/internal/profile"
	"github.com/woozymasta/go3dep/internal/raster"
)

// Service groups the 3DEP operations around one configuration.
type Service struct {
	cfg      *config.Config
	client   *fetch.Client
	profiler *profile.Profiler

	mu       sync.Mutex
	validCRS []string
}

// New returns a service using client for every remote call.
func New(cfg *config.Config, client *fetch.Client) (*Service, error) {
	s := &Service{cfg: cfg, client: client}

	p, err := profile.NewProfiler(s, cfg.Profile)
	if err != nil {
		return nil, err
	}
	s.profiler = p

	return s, nil
}

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// ElevationProfile samples elevations every opts.Spacing meters along a
// LineString or a mergeable MultiLineString.
func (s *Service) ElevationProfile(ctx context.Context, g orb.Geometry, opts profile.Options) (*profile.Profile, error) {
	return s.profiler.Profile(ctx, g, opts)
}

// DEM fetches a DEM covering bound. It lets the service act as the DEM
// provider of the profiler.
func (s *Service) DEM(ctx context.Context, bound orb.Bound, res float64, c crs.CRS) (*raster.Raster, error) {
	return s.GetDEM(ctx, DEMRequest{Geometry: bound, GeoCRS: c, CRS: c, Resolution: res})
}

// gridSize returns the pixel size of an image covering b at res meters.
// For geographic systems res is converted to degrees at the center latitude.
func gridSize(b orb.Bound, res float64, c crs.CRS) (int, int) {
	rx, ry := res, res
	if c.IsGeographic() {
		lat := b.Center()[1] * math.Pi / 180
		ry = res / 110_574
		rx = res / (111_320 * math.Max(math.Cos(lat), 1e-6))
	}
	w := max(int(math.Ceil((b.Max[0]-b.Min[0])/rx)), 1)
	h := max(int(math.Ceil((b.Max[1]-b.Min[1])/ry)), 1)
	return w, h
}

type strip struct {
	bound  orb.Bound
	width  int
	height int
}

// splitStrips cuts a width x height image over b into horizontal strips of
// at most maxPixels pixels each.
func splitStrips(b orb.Bound, width, height, maxPixels int) []strip {
	rows := max(maxPixels/width, 1)
	cell := (b.Max[1] - b.Min[1]) / float64(height)

	var out []strip
	for r0 := 0; r0 < height; r0 += rows {
		r1 := min(r0+rows, height)
		bottom := b.Max[1] - float64(r1)*cell
		if r1 == height {
			bottom = b.Min[1]
		}
		out = append(out, strip{
			bound: orb.Bound{
				Min: orb.Point{b.Min[0], bottom},
				Max: orb.Point{b.Max[0], b.Max[1] - float64(r0)*cell},
			},
			width:  width,
			height: r1 - r0,
		})
	}
	return out
}

// fetchStrips retrieves an image over area in strips and mosaics them.
// Each strip is georeferenced from its request, and cells outside a
// polygonal area are set to NaN.
func (s *Service) fetchStrips(
	ctx context.Context,
	area geo.Area,
	res float64,
	c crs.CRS,
	get func(ctx context.Context, st strip) ([]byte, error),
) (*raster.Raster, error) {
	w, h := gridSize(area.Bound, res, c)
	strips := splitStrips(area.Bound, w, h, s.cfg.HTTP.MaxPixels)
	parts := make([]*raster.Raster, len(strips))

	log.Debug().
		Int("width", w).
		Int("height", h).
		Int("strips", len(strips)).
		Str("crs", c.String()).
		Msg("Requesting raster")

	err := fetch.Batch(ctx, s.cfg.HTTP.Concurrency, strips, func(ctx context.Context, i int, st strip) error {
		body, err := get(ctx, st)
		if err != nil {
			return err
		}
		r, err := raster.DecodeBytes(body)
		if err != nil {
			return &fetch.ServiceError{Service: "raster", Err: fmt.Errorf("decode response: %w", err)}
		}
		if r.Width != st.width || r.Height != st.height {
			return &fetch.ServiceError{Service: "raster", Err: fmt.Errorf("got %dx%d image, requested %dx%d",
				r.Width, r.Height, st.width, st.height)}
		}
		r.MaskNoData()
		r.CRS = c
		r.Transform = raster.GeoTransform{
			OriginX:     st.bound.Min[0],
			OriginY:     st.bound.Max[1],
			PixelWidth:  (st.bound.Max[0] - st.bound.Min[0]) / float64(st.width),
			PixelHeight: -(st.bound.Max[1] - st.bound.Min[1]) / float64(st.height),
		}
		parts[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	r, err := raster.Mosaic(parts...)
	if err != nil {
		return nil, err
	}
	if !area.IsBox() {
		maskOutside(r, area)
	}
	return r, nil
}

// maskOutside sets cells whose center is outside area to NaN.
func maskOutside(r *raster.Raster, area geo.Area) {
	for row := range r.Height {
		for col := range r.Width {
			x, y := r.Center(col, row)
			if !area.Contains(orb.Point{x, y}) {
				r.Set(col, row, math.NaN())
			}
		}
	}
}

// projectArea validates g and reprojects it from src to dst.
func projectArea(g orb.Geometry, src, dst crs.CRS) (geo.Area, error) {
	area, err := geo.ToArea(g)
	if err != nil {
		return geo.Area{}, err
	}
	if src.Equal(dst) {
		return area, nil
	}
	if area.IsBox() {
		b, err := crs.TransformBound(area.Bound, src, dst)
		if err != nil {
			return geo.Area{}, err
		}
		return geo.Area{Bound: b}, nil
	}
	return area.MapPoints(func(pts []orb.Point) ([]orb.Point, error) {
		return crs.TransformPoints(pts, src, dst)
	})
}
