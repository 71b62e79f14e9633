package elevation

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/raster"
)

// MapRequest selects layers of the elevation WMS over an area.
type MapRequest struct {
	// Geometry is a bound, a polygon or a multi-polygon in GeoCRS.
	Geometry orb.Geometry
	// GeoCRS of Geometry. WGS84 when empty.
	GeoCRS crs.CRS
	// CRS of the returned rasters. WGS84 when empty.
	CRS    crs.CRS
	Layers []string
	// Resolution in meters.
	Resolution float64
}

// SupportedCRS returns the reference systems advertised by the WMS.
// The list is fetched once per service; concurrent first calls share one
// request and each gives up on its own context.
func (s *Service) SupportedCRS(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	list := s.validCRS
	s.mu.Unlock()
	if list != nil {
		return list, nil
	}

	body, err := s.client.Bytes(ctx, fetch.Request{
		Service: "wms",
		URL:     s.cfg.Services.WMS,
		Params: url.Values{
			"service": {"WMS"},
			"request": {"GetCapabilities"},
		},
	})
	if err != nil {
		return nil, err
	}

	list, err = parseCapabilities(body)
	if err != nil {
		return nil, &fetch.ServiceError{Service: "wms", URL: s.cfg.Services.WMS, Err: err}
	}

	s.mu.Lock()
	s.validCRS = list
	s.mu.Unlock()
	return list, nil
}

// parseCapabilities collects the distinct CRS and SRS elements of a
// capabilities document.
func parseCapabilities(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var out []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse capabilities: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || (se.Name.Local != "CRS" && se.Name.Local != "SRS") {
			continue
		}
		var v string
		if err := dec.DecodeElement(&v, &se); err != nil {
			return nil, fmt.Errorf("parse capabilities: %w", err)
		}
		c, err := crs.Parse(v)
		if err != nil {
			continue
		}
		if !slices.Contains(out, c.String()) {
			out = append(out, c.String())
		}
	}
	if len(out) == 0 {
		return nil, errors.New("capabilities list no supported CRS")
	}
	return out, nil
}

// GetMap retrieves the requested layers over req.Geometry. Results are
// keyed by LayerName. Cells outside a polygonal geometry are NaN.
func (s *Service) GetMap(ctx context.Context, req MapRequest) (map[string]*raster.Raster, error) {
	if err := ValidateLayers(req.Layers); err != nil {
		return nil, err
	}
	if !(req.Resolution > 0) {
		return nil, &InputValueError{Name: "resolution", Given: strconv.FormatFloat(req.Resolution, 'g', -1, 64), Valid: []string{"> 0"}}
	}
	geoCRS, outCRS := orWGS84(req.GeoCRS), orWGS84(req.CRS)

	valid, err := s.SupportedCRS(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(valid, outCRS.String()) {
		return nil, &InputValueError{Name: "crs", Given: outCRS.String(), Valid: valid}
	}

	area, err := projectArea(req.Geometry, geoCRS, outCRS)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*raster.Raster, len(req.Layers))
	for _, layer := range req.Layers {
		r, err := s.fetchStrips(ctx, area, req.Resolution, outCRS, func(ctx context.Context, st strip) ([]byte, error) {
			return s.getMapStrip(ctx, layer, st, outCRS)
		})
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", layer, err)
		}
		r.Name = LayerName(layer)
		r.Attrs = layerAttrs(layer)
		out[r.Name] = r
	}

	log.Debug().
		Strs("layers", req.Layers).
		Float64("resolution", req.Resolution).
		Str("crs", outCRS.String()).
		Msg("Map layers retrieved")

	return out, nil
}

func (s *Service) getMapStrip(ctx context.Context, layer string, st strip, c crs.CRS) ([]byte, error) {
	b := st.bound
	bbox := []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	if c.IsGeographic() {
		// WMS 1.3.0 uses latitude first for geographic systems
		bbox = []float64{b.Min[1], b.Min[0], b.Max[1], b.Max[0]}
	}

	body, err := s.client.Bytes(ctx, fetch.Request{
		Service: "wms",
		URL:     s.cfg.Services.WMS,
		Params: url.Values{
			"service": {"WMS"},
			"version": {"1.3.0"},
			"request": {"GetMap"},
			"layers":  {layerParam(layer)},
			"styles":  {""},
			"crs":     {c.String()},
			"bbox":    {joinFloats(bbox)},
			"width":   {strconv.Itoa(st.width)},
			"height":  {strconv.Itoa(st.height)},
			"format":  {"image/tiff"},
		},
	})
	if err != nil {
		return nil, err
	}
	if isXML(body) {
		return nil, &fetch.ServiceError{Service: "wms", URL: s.cfg.Services.WMS, Err: fmt.Errorf("service exception: %s", truncate(body))}
	}
	return body, nil
}

func orWGS84(c crs.CRS) crs.CRS {
	if c == "" {
		return crs.WGS84
	}
	return c
}

func joinFloats(v []float64) string {
	var buf []byte
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, f, 'f', -1, 64)
	}
	return string(buf)
}

func isXML(body []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("<"))
}

func truncate(body []byte) []byte {
	body = bytes.TrimSpace(body)
	if len(body) > 256 {
		return body[:256]
	}
	return body
}
