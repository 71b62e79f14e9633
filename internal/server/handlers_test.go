package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/woozymasta/go3dep/internal/config"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/elevation"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/profile"
)

type mockElevation struct {
	profileFn      func(ctx context.Context, g orb.Geometry, opts profile.Options) (*profile.Profile, error)
	coordsFn       func(ctx context.Context, pts []orb.Point, c crs.CRS, src elevation.Source) ([]float64, error)
	availabilityFn func(ctx context.Context, b orb.Bound, c crs.CRS) (map[string]bool, error)
}

func (m *mockElevation) ElevationProfile(ctx context.Context, g orb.Geometry, opts profile.Options) (*profile.Profile, error) {
	return m.profileFn(ctx, g, opts)
}

func (m *mockElevation) ElevationByCoords(ctx context.Context, pts []orb.Point, c crs.CRS, src elevation.Source) ([]float64, error) {
	return m.coordsFn(ctx, pts, c, src)
}

func (m *mockElevation) CheckAvailability(ctx context.Context, b orb.Bound, c crs.CRS) (map[string]bool, error) {
	return m.availabilityFn(ctx, b, c)
}

func newTestServer(m *mockElevation, tilesDir string) http.Handler {
	s := NewServerContext(config.Default(), m, tilesDir)
	return NewMux(s)
}

func TestHandleProfile(t *testing.T) {
	var gotOpts profile.Options
	var gotGeom orb.Geometry
	m := &mockElevation{
		profileFn: func(_ context.Context, g orb.Geometry, opts profile.Options) (*profile.Profile, error) {
			gotGeom, gotOpts = g, opts
			return &profile.Profile{CRS: crs.WGS84, Points: []profile.Point{
				{X: -100, Y: 40, Distance: 0, Elevation: 100},
				{X: -100.001, Y: 40, Distance: 85, Elevation: math.NaN()},
				{X: -100.002, Y: 40, Distance: 170, Elevation: 110},
			}}, nil
		},
	}

	body := `{"geometry":{"type":"LineString","coordinates":[[-100,40],[-100.002,40]]},"spacing":85}`
	req := httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newTestServer(m, "").ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if _, ok := gotGeom.(orb.LineString); !ok {
		t.Errorf("geometry = %T", gotGeom)
	}
	if diff := cmp.Diff(profile.Options{CRS: crs.WGS84, Spacing: 85, Resolution: 10}, gotOpts); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	var resp struct {
		Stats    profile.Stats `json:"stats"`
		Features struct {
			Features []struct {
				Properties map[string]any `json:"properties"`
			} `json:"features"`
		} `json:"features"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Features.Features) != 3 || resp.Features.Features[1].Properties["elevation"] != nil {
		t.Errorf("features = %+v", resp.Features.Features)
	}
	if resp.Stats.Valid != 2 || resp.Stats.Gain != 10 {
		t.Errorf("stats = %+v", resp.Stats)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestHandleProfileSVG(t *testing.T) {
	m := &mockElevation{
		profileFn: func(context.Context, orb.Geometry, profile.Options) (*profile.Profile, error) {
			return &profile.Profile{Points: []profile.Point{{Distance: 0, Elevation: 1}, {Distance: 10, Elevation: 2}}}, nil
		},
	}
	body := `{"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},"spacing":10,"format":"svg"}`
	rec := httptest.NewRecorder()
	newTestServer(m, "").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(body)))

	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("status = %d, content type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), "<svg") {
		t.Errorf("body = %.60s", rec.Body)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", profile.ErrInvalidInput, http.StatusBadRequest},
		{"geometry", errors.Join(errors.New("x"), errors.New("y")), http.StatusInternalServerError},
		{"unattainable", profile.ErrResolutionUnattainable, http.StatusUnprocessableEntity},
		{"service", &fetch.ServiceError{Service: "wms", Status: 503}, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"input value", &elevation.InputValueError{Name: "layers"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockElevation{
				profileFn: func(context.Context, orb.Geometry, profile.Options) (*profile.Profile, error) {
					return nil, tt.err
				},
			}
			body := `{"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},"spacing":10}`
			rec := httptest.NewRecorder()
			newTestServer(m, "").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleProfileBadBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&mockElevation{}, "").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newTestServer(&mockElevation{}, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", rec.Code)
	}
}

func TestHandleElevation(t *testing.T) {
	m := &mockElevation{
		coordsFn: func(_ context.Context, pts []orb.Point, c crs.CRS, src elevation.Source) ([]float64, error) {
			if src != elevation.SourceTNM || c != crs.FromEPSG(3857) {
				return nil, errors.New("unexpected arguments")
			}
			out := make([]float64, len(pts))
			for i, p := range pts {
				out[i] = p[0]
			}
			out[1] = math.NaN()
			return out, nil
		},
	}

	body := `{"points":[[1,2],[3,4],[5,6]],"crs":"EPSG:3857","source":"tnm"}`
	rec := httptest.NewRecorder()
	newTestServer(m, "").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/elevation", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Elevation []*float64 `json:"elevation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Elevation) != 3 || resp.Elevation[1] != nil || *resp.Elevation[2] != 5 {
		t.Errorf("elevation = %v", resp.Elevation)
	}

	rec = httptest.NewRecorder()
	body = `{"points":[[1,2]],"source":"gps"}`
	newTestServer(m, "").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/elevation", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad source status = %d", rec.Code)
	}
}

func TestHandleAvailability(t *testing.T) {
	m := &mockElevation{
		availabilityFn: func(_ context.Context, b orb.Bound, _ crs.CRS) (map[string]bool, error) {
			return map[string]bool{"1m": b.Min[0] == -70, "10m": true}, nil
		},
	}

	rec := httptest.NewRecorder()
	newTestServer(m, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/availability?bbox=-70,45,-69,46", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]bool{"1m": true, "10m": true}, got); diff != "" {
		t.Errorf("availability mismatch (-want +got):\n%s", diff)
	}

	for _, q := range []string{"", "bbox=1,2,3", "bbox=3,0,1,1", "bbox=a,b,c,d"} {
		rec := httptest.NewRecorder()
		newTestServer(m, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/availability?"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%q: status = %d", q, rec.Code)
		}
	}
}

func TestHandleLayersAndHealth(t *testing.T) {
	h := newTestServer(&mockElevation{}, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/layers", nil))
	var resp layersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Layers) != len(elevation.Layers) || resp.Layers[0] != "DEM" {
		t.Errorf("layers = %v", resp.Layers)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Errorf("health = %d %q", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go3dep_") {
		t.Errorf("metrics = %d", rec.Code)
	}
}

func TestHandleTile(t *testing.T) {
	dir := t.TempDir()
	tile := filepath.Join(dir, "ridge", "0", "0", "0.webp")
	if err := os.MkdirAll(filepath.Dir(tile), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tile, []byte("RIFFtile"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newTestServer(&mockElevation{}, dir)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tiles/ridge/0/0/0.webp", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "RIFFtile" {
		t.Fatalf("tile = %d %q", rec.Code, rec.Body)
	}
	etag := rec.Header().Get("ETag")

	req := httptest.NewRequest(http.MethodGet, "/tiles/ridge/0/0/0.webp", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("conditional status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tiles/ridge/3/1/1.webp", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/webp" || rec.Body.Len() == 0 {
		t.Errorf("missing tile = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}
