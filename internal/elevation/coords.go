package elevation

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/geo"
	"github.com/woozymasta/go3dep/internal/raster"
)

// Source selects the service answering point elevation queries.
type Source string

const (
	// SourceTEP samples the seamless 10 m DEM.
	SourceTEP Source = "tep"
	// SourceTNM queries the point query service, one request per point.
	SourceTNM Source = "tnm"
	// SourceAirMap queries the AirMap elevation API in chunks.
	SourceAirMap Source = "airmap"
)

// Sources lists every valid Source.
var Sources = []string{string(SourceTEP), string(SourceTNM), string(SourceAirMap)}

// ParseSource validates s. An empty string selects SourceTEP.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(s)) {
	case "", SourceTEP:
		return SourceTEP, nil
	case SourceTNM:
		return SourceTNM, nil
	case SourceAirMap:
		return SourceAirMap, nil
	}
	return "", &InputValueError{Name: "source", Given: s, Valid: Sources}
}

const (
	epqsNoData    = -1_000_000
	airmapChunk   = 100
	tepResolution = 10
)

// ElevationByCoords returns the elevation in meters of every point, in
// order. Points without data get NaN.
func (s *Service) ElevationByCoords(ctx context.Context, pts []orb.Point, c crs.CRS, src Source) ([]float64, error) {
	if len(pts) == 0 {
		return []float64{}, nil
	}
	src, err := ParseSource(string(src))
	if err != nil {
		return nil, err
	}

	ll, err := crs.TransformPoints(pts, orWGS84(c), crs.WGS84)
	if err != nil {
		return nil, fmt.Errorf("reproject points: %w", err)
	}

	var out []float64
	switch src {
	case SourceTNM:
		out, err = s.byEPQS(ctx, ll)
	case SourceAirMap:
		out, err = s.byAirMap(ctx, ll)
	default:
		out, err = s.byDEM(ctx, ll)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("points", len(out)).
		Str("source", string(src)).
		Msg("Point elevations retrieved")

	return out, nil
}

// flexFloat accepts numbers and numeric strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = flexFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type epqsResponse struct {
	Value flexFloat `json:"value"`
}

func (s *Service) byEPQS(ctx context.Context, ll []orb.Point) ([]float64, error) {
	out := make([]float64, len(ll))
	err := fetch.Batch(ctx, s.cfg.HTTP.Concurrency, ll, func(ctx context.Context, i int, p orb.Point) error {
		var resp epqsResponse
		err := s.client.JSON(ctx, fetch.Request{
			Service: "epqs",
			URL:     s.cfg.Services.EPQS,
			Params: url.Values{
				"x":           {strconv.FormatFloat(p[0], 'f', -1, 64)},
				"y":           {strconv.FormatFloat(p[1], 'f', -1, 64)},
				"wkid":        {"4326"},
				"units":       {"Meters"},
				"includeDate": {"false"},
			},
		}, &resp)
		if err != nil {
			return err
		}
		v := float64(resp.Value)
		if v <= epqsNoData {
			v = math.NaN()
		}
		out[i] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type airmapResponse struct {
	Status string      `json:"status"`
	Data   []flexFloat `json:"data"`
}

func (s *Service) byAirMap(ctx context.Context, ll []orb.Point) ([]float64, error) {
	var header http.Header
	if s.cfg.Services.AirMapKey != "" {
		header = http.Header{"X-Api-Key": {s.cfg.Services.AirMapKey}}
	}

	out := make([]float64, 0, len(ll))
	for start := 0; start < len(ll); start += airmapChunk {
		chunk := ll[start:min(start+airmapChunk, len(ll))]
		coords := make([]string, len(chunk))
		for i, p := range chunk {
			coords[i] = strconv.FormatFloat(p[1], 'f', -1, 64) + "," + strconv.FormatFloat(p[0], 'f', -1, 64)
		}

		var resp airmapResponse
		err := s.client.JSON(ctx, fetch.Request{
			Service: "airmap",
			URL:     s.cfg.Services.AirMap,
			Params:  url.Values{"points": {strings.Join(coords, ",")}},
			Header:  header,
		}, &resp)
		if err != nil {
			return nil, err
		}
		if len(resp.Data) != len(chunk) {
			return nil, &fetch.ServiceError{Service: "airmap", URL: s.cfg.Services.AirMap,
				Err: fmt.Errorf("got %d elevations for %d points", len(resp.Data), len(chunk))}
		}
		for _, v := range resp.Data {
			out = append(out, float64(v))
		}
	}
	return out, nil
}

// byDEM interpolates the 10 m seamless DEM fetched around the points.
func (s *Service) byDEM(ctx context.Context, ll []orb.Point) ([]float64, error) {
	pts, err := crs.TransformPoints(ll, crs.WGS84, crs.Albers)
	if err != nil {
		return nil, err
	}
	xs, ys := make([]float64, len(pts)), make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p[0], p[1]
	}

	bound := geo.Buffer(geo.BoundOf(xs, ys), 3*tepResolution)
	dem, err := s.GetDEM(ctx, DEMRequest{
		Geometry:   bound,
		GeoCRS:     crs.Albers,
		CRS:        crs.Albers,
		Resolution: tepResolution,
	})
	if err != nil {
		return nil, err
	}

	out := dem.Values(xs, ys, raster.Linear)
	for i, v := range out {
		if dem.IsNoData(v) {
			out[i] = math.NaN()
		}
	}
	return out, nil
}
