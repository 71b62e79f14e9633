package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/fetch"
)

// IndexResolutions lists the dataset groups of the 3DEP index.
var IndexResolutions = []string{"1m", "3m", "5m", "10m", "30m", "60m", "topobathy"}

var indexLayers = map[string]int{
	"1m":        18,
	"3m":        19,
	"5m":        20,
	"10m":       21,
	"30m":       22,
	"60m":       23,
	"topobathy": 30,
}

// DataSource is a dataset footprint of the 3DEP index.
type DataSource struct {
	Feature    *geojson.Feature `json:"feature"`
	Resolution string           `json:"resolution"`
}

type arcgisError struct {
	Error *struct {
		Message string   `json:"message"`
		Details []string `json:"details"`
		Code    int      `json:"code"`
	} `json:"error"`
}

type idsResponse struct {
	arcgisError
	ObjectIDs []int64 `json:"objectIds"`
}

// CheckAvailability reports, per index resolution, whether any dataset
// intersects bound. bound is in c, WGS84 when empty.
func (s *Service) CheckAvailability(ctx context.Context, bound orb.Bound, c crs.CRS) (map[string]bool, error) {
	env, err := s.envelope(bound, c)
	if err != nil {
		return nil, err
	}

	found := make([]bool, len(IndexResolutions))
	err = fetch.Batch(ctx, s.cfg.HTTP.Concurrency, IndexResolutions, func(ctx context.Context, i int, res string) error {
		endpoint := s.indexURL(res)
		params := indexParams(env)
		params.Set("returnIdsOnly", "true")
		params.Set("f", "json")

		var resp idsResponse
		if err := s.client.JSON(ctx, fetch.Request{Service: "index", URL: endpoint, Params: params}, &resp); err != nil {
			return err
		}
		if resp.Error != nil {
			return &fetch.ServiceError{Service: "index", URL: endpoint, Status: resp.Error.Code, Err: fmt.Errorf("%s", resp.Error.Message)}
		}
		found[i] = len(resp.ObjectIDs) > 0
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]bool, len(IndexResolutions))
	for i, res := range IndexResolutions {
		out[res] = found[i]
	}
	return out, nil
}

// QuerySources returns the footprints of datasets intersecting bound for
// the given resolutions, every resolution when none are given.
func (s *Service) QuerySources(ctx context.Context, bound orb.Bound, c crs.CRS, resolutions ...string) ([]DataSource, error) {
	if len(resolutions) == 0 {
		resolutions = IndexResolutions
	}
	for _, r := range resolutions {
		if !slices.Contains(IndexResolutions, r) {
			return nil, &InputValueError{Name: "resolution", Given: r, Valid: IndexResolutions}
		}
	}
	env, err := s.envelope(bound, c)
	if err != nil {
		return nil, err
	}

	parts := make([][]DataSource, len(resolutions))
	err = fetch.Batch(ctx, s.cfg.HTTP.Concurrency, resolutions, func(ctx context.Context, i int, res string) error {
		endpoint := s.indexURL(res)
		params := indexParams(env)
		params.Set("outFields", "*")
		params.Set("returnGeometry", "true")
		params.Set("outSR", "4326")
		params.Set("f", "geojson")

		body, err := s.client.Bytes(ctx, fetch.Request{Service: "index", URL: endpoint, Params: params})
		if err != nil {
			return err
		}
		var ae arcgisError
		if err := json.Unmarshal(body, &ae); err == nil && ae.Error != nil {
			return &fetch.ServiceError{Service: "index", URL: endpoint, Status: ae.Error.Code, Err: fmt.Errorf("%s", ae.Error.Message)}
		}
		fc, err := geojson.UnmarshalFeatureCollection(body)
		if err != nil {
			return &fetch.ServiceError{Service: "index", URL: endpoint, Err: fmt.Errorf("decode features: %w", err)}
		}
		for _, f := range fc.Features {
			parts[i] = append(parts[i], DataSource{Resolution: res, Feature: f})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []DataSource
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// SourcesCollection gathers sources into one collection with the
// resolution stored as a property.
func SourcesCollection(src []DataSource) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range src {
		f := geojson.NewFeature(s.Feature.Geometry)
		f.Properties = s.Feature.Properties.Clone()
		f.Properties["dem_res"] = s.Resolution
		fc.Append(f)
	}
	return fc
}

func (s *Service) indexURL(res string) string {
	return s.cfg.Services.Index + "/" + strconv.Itoa(indexLayers[res]) + "/query"
}

func (s *Service) envelope(b orb.Bound, c crs.CRS) (orb.Bound, error) {
	c = orWGS84(c)
	if c.Equal(crs.WGS84) {
		return b, nil
	}
	return crs.TransformBound(b, c, crs.WGS84)
}

func indexParams(env orb.Bound) url.Values {
	return url.Values{
		"geometry":     {joinFloats([]float64{env.Min[0], env.Min[1], env.Max[0], env.Max[1]})},
		"geometryType": {"esriGeometryEnvelope"},
		"inSR":         {"4326"},
		"spatialRel":   {"esriSpatialRelIntersects"},
	}
}
