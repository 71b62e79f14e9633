package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/woozymasta/go3dep/internal/raster"
)

// readGeometries loads a GeoJSON file holding a feature collection, a
// single feature or a bare geometry.
func readGeometries(path string) ([]orb.Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseGeometries(data)
}

func parseGeometries(data []byte) ([]orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		out := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				out = append(out, f.Geometry)
			}
		}
		if len(out) == 0 {
			return nil, errors.New("feature collection has no geometries")
		}
		return out, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		if f.Geometry == nil {
			return nil, errors.New("feature has no geometry")
		}
		return []orb.Geometry{f.Geometry}, nil
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	return []orb.Geometry{g.Geometry()}, nil
}

// readPoints loads x,y pairs from a CSV file. A header row naming the
// columns x/y or lon/lat is honored, otherwise the first two columns are used.
func readPoints(r io.Reader) ([]orb.Point, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no rows")
	}

	xi, yi := 0, 1
	if _, err := strconv.ParseFloat(records[0][0], 64); err != nil {
		header := records[0]
		records = records[1:]
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(h))
			switch {
			case slices.Contains([]string{"x", "lon", "longitude", "lng"}, h):
				xi = i
			case slices.Contains([]string{"y", "lat", "latitude"}, h):
				yi = i
			}
		}
	}

	pts := make([]orb.Point, 0, len(records))
	for n, rec := range records {
		if len(rec) <= max(xi, yi) {
			return nil, fmt.Errorf("csv row %d: want at least %d columns", n+1, max(xi, yi)+1)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(rec[xi]), 64)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", n+1, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(rec[yi]), 64)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", n+1, err)
		}
		pts = append(pts, orb.Point{x, y})
	}
	return pts, nil
}

// parseBBox reads "minx,miny,maxx,maxy".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// nullable replaces NaN with nil so values can be encoded as JSON.
func nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if !math.IsNaN(values[i]) {
			out[i] = &values[i]
		}
	}
	return out
}

// writeJSON encodes v to path, or to stdout when path is empty or "-".
func writeJSON(path string, v any) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeGeoTIFF writes r as a deflate compressed GeoTIFF.
func writeGeoTIFF(path string, r *raster.Raster) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := raster.Encode(f, r, &raster.EncodeOptions{Compress: true}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
