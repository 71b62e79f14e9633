// Package server handles HTTP requests and middleware.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/elevation"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/geo"
	"github.com/woozymasta/go3dep/internal/profile"
	"github.com/woozymasta/go3dep/internal/render"
)

const (
	etagCap      = 64
	maxBodyBytes = 4 << 20
)

type layersResponse struct {
	Layers            []string  `json:"layers"`
	StaticResolutions []float64 `json:"static_resolutions"`
	Sources           []string  `json:"sources"`
	IndexResolutions  []string  `json:"index_resolutions"`
}

// HandleLayers lists the products and sources the service can query.
func (s *ServerContext) HandleLayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, layersResponse{
		Layers:            elevation.Layers,
		StaticResolutions: elevation.StaticResolutions,
		Sources:           elevation.Sources,
		IndexResolutions:  elevation.IndexResolutions,
	})
}

// HandleHealth reports liveness.
func (s *ServerContext) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

type profileRequest struct {
	Geometry   *geojson.Geometry `json:"geometry"`
	CRS        string            `json:"crs"`
	Format     string            `json:"format"` // geojson | svg
	Spacing    float64           `json:"spacing"`
	Resolution float64           `json:"resolution"`
}

type profileResponse struct {
	Stats    *profile.Stats                `json:"stats,omitempty"`
	Features *geo.GeoJSONFeatureCollection `json:"features"`
	CRS      string                        `json:"crs"`
}

// HandleProfile builds an elevation profile along a posted line.
func (s *ServerContext) HandleProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Geometry == nil {
		writeError(w, fmt.Errorf("%w: geometry is required", geo.ErrInvalidGeometryType))
		return
	}
	c, err := parseCRS(req.CRS)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Resolution == 0 {
		req.Resolution = 10
	}

	p, err := s.Elevation.ElevationProfile(r.Context(), req.Geometry.Geometry(), profile.Options{
		CRS:        c,
		Spacing:    req.Spacing,
		Resolution: req.Resolution,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Format == "svg" {
		out, err := render.ProfileSVG(p, render.ChartOptions{})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write(out)
		return
	}

	resp := profileResponse{CRS: p.CRS.String(), Features: p.FeatureCollection()}
	if st := p.Stats(); st.Valid > 0 {
		resp.Stats = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

type elevationRequest struct {
	CRS    string       `json:"crs"`
	Source string       `json:"source"`
	Points [][2]float64 `json:"points"`
}

type elevationResponse struct {
	Source    string     `json:"source"`
	Elevation []*float64 `json:"elevation"`
}

// HandleElevation returns the elevation of posted points. Points without
// data are null.
func (s *ServerContext) HandleElevation(w http.ResponseWriter, r *http.Request) {
	var req elevationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := parseCRS(req.CRS)
	if err != nil {
		writeError(w, err)
		return
	}
	src, err := elevation.ParseSource(req.Source)
	if err != nil {
		writeError(w, err)
		return
	}

	pts := make([]orb.Point, len(req.Points))
	for i, p := range req.Points {
		pts[i] = orb.Point(p)
	}

	values, err := s.Elevation.ElevationByCoords(r.Context(), pts, c, src)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := elevationResponse{Source: string(src), Elevation: make([]*float64, len(values))}
	for i := range values {
		if !math.IsNaN(values[i]) {
			resp.Elevation[i] = &values[i]
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleAvailability reports which 3DEP resolutions cover ?bbox=.
func (s *ServerContext) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	b, err := parseBBox(q.Get("bbox"))
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := parseCRS(q.Get("crs"))
	if err != nil {
		writeError(w, err)
		return
	}

	avail, err := s.Elevation.CheckAvailability(r.Context(), b, c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// HandleTile serves pre-rendered preview tiles: /tiles/{name}/{z}/{x}/{y}.webp.
// Missing tiles are answered with a transparent one.
func (s *ServerContext) HandleTile(w http.ResponseWriter, r *http.Request) {
	if s.TilesDir == "" {
		http.NotFound(w, r)
		return
	}

	parts := []string{r.PathValue("name"), r.PathValue("z"), r.PathValue("x"), r.PathValue("y")}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			http.NotFound(w, r)
			return
		}
	}
	if !strings.HasSuffix(parts[3], ".webp") {
		http.NotFound(w, r)
		return
	}

	if s.serveFile(w, r, filepath.Join(append([]string{s.TilesDir}, parts...)...), "image/webp") {
		return
	}

	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(s.TransparentTile)
}

// serveFile tries to serve a file from disk with ETag generation.
// It returns true if the file was found and served (or 304).
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func parseCRS(s string) (crs.CRS, error) {
	if s == "" {
		return crs.WGS84, nil
	}
	return crs.Parse(s)
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, &elevation.InputValueError{Name: "bbox", Given: s, Valid: []string{"minx,miny,maxx,maxy"}}
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, &elevation.InputValueError{Name: "bbox", Given: s, Valid: []string{"minx,miny,maxx,maxy"}}
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, &elevation.InputValueError{Name: "bbox", Given: s, Valid: []string{"min <= max"}}
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var ive *elevation.InputValueError
	switch {
	case errors.As(err, &ive),
		errors.Is(err, profile.ErrInvalidInput),
		errors.Is(err, geo.ErrInvalidGeometryType),
		errors.Is(err, geo.ErrUnmergeableGeometry),
		errors.Is(err, crs.ErrUnknownCRS),
		errors.Is(err, elevation.ErrMissingCRS):
		return http.StatusBadRequest
	case errors.Is(err, profile.ErrResolutionUnattainable):
		return http.StatusUnprocessableEntity
	case fetch.IsContextError(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, fetch.ErrServiceUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}
