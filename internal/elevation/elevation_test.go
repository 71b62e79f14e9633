package elevation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/profile"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestValidateLayers(t *testing.T) {
	if err := ValidateLayers([]string{"DEM", "Slope Degrees"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ive *InputValueError
	if err := ValidateLayers([]string{"DEM", "Roughness"}); !errors.As(err, &ive) {
		t.Fatalf("error = %v, want InputValueError", err)
	}
	if ive.Given != "Roughness" || ive.Name != "layers" {
		t.Errorf("error = %+v", ive)
	}
	if err := ValidateLayers(nil); !errors.As(err, &ive) {
		t.Fatalf("empty layers: error = %v", err)
	}
}

func TestLayerName(t *testing.T) {
	tests := map[string]string{
		"DEM":                         "elevation",
		"Slope Degrees":               "slope_degrees",
		"GreyHillshade_elevationFill": "greyhillshade_elevationfill",
		"Contour Smoothed 25":         "contour_smoothed_25",
	}
	for in, want := range tests {
		if got := LayerName(in); got != want {
			t.Errorf("LayerName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := layerParam("DEM"); got != "3DEPElevation:None" {
		t.Errorf("layerParam(DEM) = %q", got)
	}
}

func TestSplitStrips(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 250}}
	strips := splitStrips(b, 10, 25, 100)

	if len(strips) != 3 {
		t.Fatalf("got %d strips, want 3", len(strips))
	}
	rows := 0
	for _, s := range strips {
		rows += s.height
	}
	if rows != 25 {
		t.Errorf("rows = %d, want 25", rows)
	}
	if strips[0].bound.Max[1] != 250 || strips[2].bound.Min[1] != 0 {
		t.Errorf("strips do not cover the bound: %+v", strips)
	}
	if strips[0].bound.Min[1] != strips[1].bound.Max[1] {
		t.Errorf("strips are not contiguous: %v %v", strips[0].bound, strips[1].bound)
	}
}

func TestGetMapLayers(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())

	maps, err := s.GetMap(context.Background(), MapRequest{
		Geometry:   orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{300, 600}},
		GeoCRS:     crs.Albers,
		CRS:        crs.Albers,
		Layers:     []string{"DEM", "Slope Degrees"},
		Resolution: 30,
	})
	if err != nil {
		t.Fatalf("GetMap: %v", err)
	}

	var names []string
	for k := range maps {
		names = append(names, k)
	}
	if len(maps) != 2 || maps["elevation"] == nil || maps["slope_degrees"] == nil {
		t.Fatalf("layers = %v", names)
	}

	dem := maps["elevation"]
	if dem.Width != 10 || dem.Height != 20 {
		t.Fatalf("size = %dx%d, want 10x20", dem.Width, dem.Height)
	}
	if got := dem.At(0, 0); !near(got, 585, 1e-3) {
		t.Errorf("top cell = %g, want 585", got)
	}
	if got := dem.At(9, 19); !near(got, 15, 1e-3) {
		t.Errorf("bottom cell = %g, want 15", got)
	}
	if diff := cmp.Diff(map[string]string{"units": "meters", "vertical_datum": "NAVD88"}, dem.Attrs); diff != "" {
		t.Errorf("attrs mismatch (-want +got):\n%s", diff)
	}
	if maps["slope_degrees"].Attrs["units"] != "degrees" {
		t.Errorf("slope attrs = %v", maps["slope_degrees"].Attrs)
	}
}

func TestGetMapSplitsLargeRequests(t *testing.T) {
	f := newFake3DEP(t)
	cfg := f.config()
	cfg.HTTP.MaxPixels = 100
	s := f.service(t, cfg)

	maps, err := s.GetMap(context.Background(), MapRequest{
		Geometry:   orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{300, 600}},
		GeoCRS:     crs.Albers,
		CRS:        crs.Albers,
		Layers:     []string{"DEM"},
		Resolution: 30,
	})
	if err != nil {
		t.Fatalf("GetMap: %v", err)
	}
	if got := f.getMap.Load(); got != 2 {
		t.Errorf("GetMap requests = %d, want 2", got)
	}

	dem := maps["elevation"]
	if dem.Height != 20 {
		t.Fatalf("height = %d, want 20", dem.Height)
	}
	for row := range dem.Height {
		want := 600 - 30*float64(row) - 15
		if got := dem.At(3, row); !near(got, want, 1e-3) {
			t.Errorf("row %d = %g, want %g", row, got, want)
		}
	}
}

func TestGetMapGeographic(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())

	maps, err := s.GetMap(context.Background(), MapRequest{
		Geometry:   orb.Bound{Min: orb.Point{-100, 40}, Max: orb.Point{-99.99, 40.01}},
		Layers:     []string{"DEM"},
		Resolution: 30,
	})
	if err != nil {
		t.Fatalf("GetMap: %v", err)
	}

	dem := maps["elevation"]
	if dem.CRS != crs.WGS84 {
		t.Errorf("crs = %s", dem.CRS)
	}
	_, y := dem.Center(0, 0)
	if got := dem.At(0, 0); !near(got, y, 1e-4) || y < 40 || y > 40.01 {
		t.Errorf("top cell = %g, center latitude %g", got, y)
	}
}

func TestGetMapPolygonMask(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())

	tri := orb.Polygon{{{0, 0}, {300, 0}, {0, 300}, {0, 0}}}
	maps, err := s.GetMap(context.Background(), MapRequest{
		Geometry:   tri,
		GeoCRS:     crs.Albers,
		CRS:        crs.Albers,
		Layers:     []string{"DEM"},
		Resolution: 30,
	})
	if err != nil {
		t.Fatalf("GetMap: %v", err)
	}

	dem := maps["elevation"]
	if got := dem.At(9, 0); !math.IsNaN(got) {
		t.Errorf("cell outside polygon = %g, want NaN", got)
	}
	if got := dem.At(0, 9); !near(got, 15, 1e-3) {
		t.Errorf("cell inside polygon = %g, want 15", got)
	}
}

func TestGetMapErrors(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())
	box := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{300, 300}}

	tests := []struct {
		name string
		req  MapRequest
		arg  string
	}{
		{"unknown layer", MapRequest{Geometry: box, GeoCRS: crs.Albers, CRS: crs.Albers, Layers: []string{"Roughness"}, Resolution: 30}, "layers"},
		{"unsupported crs", MapRequest{Geometry: box, GeoCRS: crs.Albers, CRS: crs.FromEPSG(32615), Layers: []string{"DEM"}, Resolution: 30}, "crs"},
		{"zero resolution", MapRequest{Geometry: box, GeoCRS: crs.Albers, CRS: crs.Albers, Layers: []string{"DEM"}}, "resolution"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.GetMap(context.Background(), tt.req)
			var ive *InputValueError
			if !errors.As(err, &ive) {
				t.Fatalf("error = %v, want InputValueError", err)
			}
			if ive.Name != tt.arg {
				t.Errorf("argument = %q, want %q", ive.Name, tt.arg)
			}
		})
	}
}

func TestGetDEMDispatch(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())
	box := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{300, 300}}

	dem, err := s.GetDEM(context.Background(), DEMRequest{Geometry: box, GeoCRS: crs.Albers, CRS: crs.Albers, Resolution: 30})
	if err != nil {
		t.Fatalf("GetDEM static: %v", err)
	}
	if f.export.Load() != 1 || f.getMap.Load() != 0 {
		t.Errorf("export = %d, getmap = %d", f.export.Load(), f.getMap.Load())
	}
	if dem.Name != "elevation" || dem.Attrs["resolution"] != "30" {
		t.Errorf("name = %q, attrs = %v", dem.Name, dem.Attrs)
	}
	if got := dem.At(0, 0); !near(got, 285, 1e-3) {
		t.Errorf("top cell = %g, want 285", got)
	}

	if _, err := s.GetDEM(context.Background(), DEMRequest{Geometry: box, GeoCRS: crs.Albers, CRS: crs.Albers, Resolution: 25}); err != nil {
		t.Fatalf("GetDEM wms: %v", err)
	}
	if f.getMap.Load() != 1 {
		t.Errorf("getmap = %d, want 1", f.getMap.Load())
	}

	var ive *InputValueError
	if _, err := s.StaticDEM(context.Background(), DEMRequest{Geometry: box, Resolution: 25}); !errors.As(err, &ive) {
		t.Errorf("StaticDEM(25) error = %v, want InputValueError", err)
	}
}

func TestElevationByCoordsTNM(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())

	pts := []orb.Point{{-100, 40}, {0, 0}, {-101.5, 41.25}}
	got, err := s.ElevationByCoords(context.Background(), pts, crs.WGS84, SourceTNM)
	if err != nil {
		t.Fatalf("ElevationByCoords: %v", err)
	}
	if len(got) != 3 || f.epqs.Load() != 3 {
		t.Fatalf("got %v after %d requests", got, f.epqs.Load())
	}
	if !near(got[0], -60, 1e-9) || !math.IsNaN(got[1]) || !near(got[2], -60.25, 1e-9) {
		t.Errorf("elevations = %v", got)
	}
}

func TestElevationByCoordsAirMap(t *testing.T) {
	f := newFake3DEP(t)
	cfg := f.config()
	cfg.Services.AirMapKey = "secret"
	s := f.service(t, cfg)

	pts := make([]orb.Point, 150)
	for i := range pts {
		pts[i] = orb.Point{-100, 30 + float64(i)/100}
	}
	got, err := s.ElevationByCoords(context.Background(), pts, crs.WGS84, SourceAirMap)
	if err != nil {
		t.Fatalf("ElevationByCoords: %v", err)
	}
	if f.airmap.Load() != 2 {
		t.Errorf("requests = %d, want 2", f.airmap.Load())
	}
	if f.airKey.Load() != "secret" {
		t.Errorf("api key = %v", f.airKey.Load())
	}
	for i, v := range got {
		if !near(v, pts[i][1], 1e-9) {
			t.Fatalf("elevation[%d] = %g, want %g", i, v, pts[i][1])
		}
	}
}

func TestElevationByCoordsTEP(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())

	pts := []orb.Point{{-100, 40}}
	got, err := s.ElevationByCoords(context.Background(), pts, crs.WGS84, "")
	if err != nil {
		t.Fatalf("ElevationByCoords: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d values, want 1", len(got))
	}

	albers, err := crs.TransformPoints(pts, crs.WGS84, crs.Albers)
	if err != nil {
		t.Fatal(err)
	}
	// the fake DEM holds the northing of each cell and is stored as float32
	if !near(got[0], albers[0][1], 1) {
		t.Errorf("elevation = %g, want %g", got[0], albers[0][1])
	}
	if f.export.Load() != 1 {
		t.Errorf("export requests = %d, want 1", f.export.Load())
	}
}

func TestElevationByCoordsInput(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())

	got, err := s.ElevationByCoords(context.Background(), nil, crs.WGS84, SourceTNM)
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("empty input: got %v, %v", got, err)
	}

	var ive *InputValueError
	_, err = s.ElevationByCoords(context.Background(), []orb.Point{{0, 0}}, crs.WGS84, "usgs")
	if !errors.As(err, &ive) || ive.Name != "source" {
		t.Errorf("error = %v, want source InputValueError", err)
	}
}

func TestElevationByGrid(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())

	xs := []float64{100, 200, 300}
	ys := []float64{1000, 900}
	g, err := s.ElevationByGrid(context.Background(), xs, ys, crs.Albers, 10, true)
	if err != nil {
		t.Fatalf("ElevationByGrid: %v", err)
	}

	elev := g.Vars[ElevationVar]
	if len(elev) != 2 || len(elev[0]) != 3 {
		t.Fatalf("shape = %dx%d", len(elev), len(elev[0]))
	}
	for i, y := range ys {
		for j := range xs {
			if !near(elev[i][j], y, 1e-3) {
				t.Errorf("elevation[%d][%d] = %g, want %g", i, j, elev[i][j], y)
			}
		}
	}
	if g.Dims != DefaultAxes {
		t.Errorf("dims = %+v", g.Dims)
	}
}

func TestAddElevation(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())
	ctx := context.Background()

	if err := s.AddElevation(ctx, NewGrid([]float64{0, 10}, []float64{0}, ""), 10, DefaultAxes, nil); !errors.Is(err, ErrMissingCRS) {
		t.Errorf("no crs: error = %v", err)
	}

	g := NewGrid([]float64{100, 110, 120}, []float64{500, 490}, crs.Albers)
	var ive *InputValueError
	if err := s.AddElevation(ctx, g, 10, AxisNames{Y: "lat", X: "lon"}, nil); !errors.As(err, &ive) {
		t.Errorf("axes mismatch: error = %v", err)
	}

	mask := [][]bool{{true, false, true}, {true, true, true}}
	if err := s.AddElevation(ctx, g, 0, DefaultAxes, mask); err != nil {
		t.Fatalf("AddElevation: %v", err)
	}
	elev := g.Vars[ElevationVar]
	if !math.IsNaN(elev[0][1]) {
		t.Errorf("masked cell = %g, want NaN", elev[0][1])
	}
	if !near(elev[1][2], 490, 1e-3) {
		t.Errorf("elevation[1][2] = %g, want 490", elev[1][2])
	}
}

func TestElevationProfile(t *testing.T) {
	f := newFake3DEP(t)
	s := f.service(t, f.config())

	line := orb.LineString{{0, 0}, {0, 1000}}
	p, err := s.ElevationProfile(context.Background(), line, profile.Options{CRS: crs.Albers, Spacing: 300, Resolution: 10})
	if err != nil {
		t.Fatalf("ElevationProfile: %v", err)
	}
	if p.Len() != 4 {
		t.Fatalf("points = %d, want 4", p.Len())
	}
	for _, pt := range p.Points {
		if !near(pt.Elevation, pt.Y, 5.01) {
			t.Errorf("elevation at y=%g is %g", pt.Y, pt.Elevation)
		}
	}
	if f.export.Load() != 1 {
		t.Errorf("export requests = %d, want 1", f.export.Load())
	}
}

func TestServiceErrors(t *testing.T) {
	f := newFake3DEP(t)
	cfg := f.config()
	cfg.Services.ImageServer = f.srv.URL + "/missing"
	s := f.service(t, cfg)

	_, err := s.GetDEM(context.Background(), DEMRequest{
		Geometry:   orb.Bound{Max: orb.Point{100, 100}},
		GeoCRS:     crs.Albers,
		CRS:        crs.Albers,
		Resolution: 10,
	})
	if !errors.Is(err, fetch.ErrServiceUnavailable) {
		t.Fatalf("error = %v, want ErrServiceUnavailable", err)
	}
	var se *fetch.ServiceError
	if !errors.As(err, &se) || se.Status != 404 {
		t.Errorf("service error = %+v", se)
	}
}
