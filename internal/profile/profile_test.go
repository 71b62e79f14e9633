package profile_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/woozymasta/go3dep/internal/config"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/geo"
	"github.com/woozymasta/go3dep/internal/profile"
	"github.com/woozymasta/go3dep/internal/raster"
)

type mockDEM struct {
	demFn func(ctx context.Context, b orb.Bound, res float64, c crs.CRS) (*raster.Raster, error)
	calls int
}

func (m *mockDEM) DEM(ctx context.Context, b orb.Bound, res float64, c crs.CRS) (*raster.Raster, error) {
	m.calls++
	return m.demFn(ctx, b, res, c)
}

// slopeDEM returns a DEM over the requested bound whose value is the x
// coordinate of the cell center divided by 10.
func slopeDEM() *mockDEM {
	return &mockDEM{demFn: func(_ context.Context, b orb.Bound, res float64, c crs.CRS) (*raster.Raster, error) {
		r := raster.FromBound(b, res, c, -9999)
		for row := range r.Height {
			for col := range r.Width {
				x, _ := r.Center(col, row)
				r.Set(col, row, x/10)
			}
		}
		return r, nil
	}}
}

func newProfiler(t *testing.T, dem profile.DEMProvider) *profile.Profiler {
	t.Helper()
	p, err := profile.NewProfiler(dem, config.Default().Profile)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestProfileProjectedLine(t *testing.T) {
	dem := slopeDEM()
	p := newProfiler(t, dem)

	line := orb.LineString{{0, 0}, {1000, 0}}
	prof, err := p.Profile(context.Background(), line, profile.Options{CRS: crs.Albers, Spacing: 100, Resolution: 10})
	if err != nil {
		t.Fatal(err)
	}

	if n := prof.Len(); n < 10 || n > 11 {
		t.Fatalf("got %d points, want 10 or 11", n)
	}
	if dem.calls != 1 {
		t.Errorf("DEM requested %d times", dem.calls)
	}

	prev := 0.0
	for i, pt := range prof.Points {
		if pt.Distance < prev {
			t.Errorf("distance decreases at %d", i)
		}
		prev = pt.Distance
		if math.Abs(pt.X-pt.Distance) > 1e-6 || math.Abs(pt.Y) > 1e-6 {
			t.Errorf("point %d at (%v, %v), distance %v", i, pt.X, pt.Y, pt.Distance)
		}
		// nearest cell of 10 m cells: elevation within one cell of x/10
		if math.Abs(pt.Elevation-pt.X/10) > 1 {
			t.Errorf("point %d elevation %v, want about %v", i, pt.Elevation, pt.X/10)
		}
	}
	if prof.CRS != crs.Albers {
		t.Errorf("CRS = %q", prof.CRS)
	}
}

func TestProfileGeographicInput(t *testing.T) {
	p := newProfiler(t, slopeDEM())

	line := orb.LineString{{-105.30, 40.00}, {-105.28, 40.01}}
	prof, err := p.Profile(context.Background(), line, profile.Options{Spacing: 50, Resolution: 10})
	if err != nil {
		t.Fatal(err)
	}
	if prof.Len() == 0 {
		t.Fatal("empty profile")
	}
	if prof.CRS != crs.WGS84 {
		t.Errorf("CRS = %q, want WGS84 default", prof.CRS)
	}

	bound := line.Bound().Pad(1e-6)
	for i, pt := range prof.Points {
		if !bound.Contains(orb.Point{pt.X, pt.Y}) {
			t.Errorf("point %d (%v, %v) is outside the input line bound", i, pt.X, pt.Y)
		}
	}
}

func TestProfileOutsideDEM(t *testing.T) {
	dem := &mockDEM{demFn: func(_ context.Context, _ orb.Bound, res float64, c crs.CRS) (*raster.Raster, error) {
		far := orb.Bound{Min: orb.Point{1e6, 1e6}, Max: orb.Point{1e6 + 100, 1e6 + 100}}
		r := raster.FromBound(far, res, c, -9999)
		for i := range r.Data {
			r.Data[i] = 5
		}
		return r, nil
	}}
	p := newProfiler(t, dem)

	prof, err := p.Profile(context.Background(), orb.LineString{{0, 0}, {500, 0}},
		profile.Options{CRS: crs.Albers, Spacing: 100, Resolution: 10})
	if err != nil {
		t.Fatal(err)
	}
	for i, pt := range prof.Points {
		if pt.Elevation != -9999 {
			t.Errorf("point %d elevation = %v, want nodata", i, pt.Elevation)
		}
	}
}

func TestProfileErrors(t *testing.T) {
	unavailable := &fetch.ServiceError{Service: "wms", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		geom orb.Geometry
		opts profile.Options
		dem  error
		want error
	}{
		{
			name: "unmergeable",
			geom: orb.MultiLineString{{{0, 0}, {1, 0}}, {{5, 5}, {6, 5}}},
			opts: profile.Options{CRS: crs.Albers, Spacing: 10, Resolution: 10},
			want: geo.ErrUnmergeableGeometry,
		},
		{
			name: "polygon",
			geom: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
			opts: profile.Options{CRS: crs.Albers, Spacing: 10, Resolution: 10},
			want: geo.ErrInvalidGeometryType,
		},
		{
			name: "spacing",
			geom: orb.LineString{{0, 0}, {1, 0}},
			opts: profile.Options{CRS: crs.Albers, Spacing: 0, Resolution: 10},
			want: profile.ErrInvalidInput,
		},
		{
			name: "resolution",
			geom: orb.LineString{{0, 0}, {1, 0}},
			opts: profile.Options{CRS: crs.Albers, Spacing: 10, Resolution: -1},
			want: profile.ErrInvalidInput,
		},
		{
			name: "sample ceiling",
			geom: orb.LineString{{0, 0}, {10000, 0}},
			opts: profile.Options{CRS: crs.Albers, Spacing: 0.001, Resolution: 10},
			want: profile.ErrResolutionUnattainable,
		},
		{
			name: "service",
			geom: orb.LineString{{0, 0}, {100, 0}},
			opts: profile.Options{CRS: crs.Albers, Spacing: 10, Resolution: 10},
			dem:  unavailable,
			want: fetch.ErrServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dem := &mockDEM{demFn: func(context.Context, orb.Bound, float64, crs.CRS) (*raster.Raster, error) {
				if tt.dem != nil {
					return nil, tt.dem
				}
				t.Error("DEM requested for invalid input")
				return nil, errors.New("unexpected")
			}}
			_, err := newProfiler(t, dem).Profile(context.Background(), tt.geom, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProfileZeroLength(t *testing.T) {
	p := newProfiler(t, slopeDEM())
	prof, err := p.Profile(context.Background(), orb.LineString{{10, 10}, {10, 10}},
		profile.Options{CRS: crs.Albers, Spacing: 10, Resolution: 10})
	if err != nil {
		t.Fatal(err)
	}
	if prof.Len() != 0 {
		t.Errorf("points = %d, want 0", prof.Len())
	}
}

func TestProfileDEMBufferedBound(t *testing.T) {
	var got orb.Bound
	dem := slopeDEM()
	inner := dem.demFn
	dem.demFn = func(ctx context.Context, b orb.Bound, res float64, c crs.CRS) (*raster.Raster, error) {
		got = b
		if c != crs.Albers {
			t.Errorf("DEM CRS = %q", c)
		}
		return inner(ctx, b, res, c)
	}

	_, err := newProfiler(t, dem).Profile(context.Background(), orb.LineString{{0, 0}, {1000, 500}},
		profile.Options{CRS: crs.Albers, Spacing: 100, Resolution: 30})
	if err != nil {
		t.Fatal(err)
	}
	want := orb.Bound{Min: orb.Point{-150, -150}, Max: orb.Point{1150, 650}}
	if got != want {
		t.Errorf("DEM bound = %v, want %v", got, want)
	}
}

func TestNewProfilerRejectsGeographicWorkingCRS(t *testing.T) {
	cfg := config.Default().Profile
	cfg.WorkingCRS = "EPSG:4326"
	if _, err := profile.NewProfiler(slopeDEM(), cfg); err == nil {
		t.Error("expected error")
	}
}
