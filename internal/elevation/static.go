package elevation

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/raster"
)

// StaticResolutions are the seamless DEM products, in meters.
var StaticResolutions = []float64{10, 30, 60}

// DEMRequest selects a DEM over an area.
type DEMRequest struct {
	// Geometry is a bound, a polygon or a multi-polygon in GeoCRS.
	Geometry orb.Geometry
	// GeoCRS of Geometry. WGS84 when empty.
	GeoCRS crs.CRS
	// CRS of the returned raster. WGS84 when empty.
	CRS crs.CRS
	// Resolution in meters.
	Resolution float64
}

func isStatic(res float64) bool {
	for _, r := range StaticResolutions {
		if r == res {
			return true
		}
	}
	return false
}

// StaticDEM exports a seamless DEM at one of StaticResolutions from the
// elevation image service.
func (s *Service) StaticDEM(ctx context.Context, req DEMRequest) (*raster.Raster, error) {
	if !isStatic(req.Resolution) {
		return nil, &InputValueError{
			Name:  "resolution",
			Given: strconv.FormatFloat(req.Resolution, 'g', -1, 64),
			Valid: []string{"10", "30", "60"},
		}
	}
	geoCRS, outCRS := orWGS84(req.GeoCRS), orWGS84(req.CRS)
	code, ok := outCRS.EPSG()
	if !ok {
		return nil, &InputValueError{Name: "crs", Given: outCRS.String(), Valid: []string{"EPSG codes"}}
	}

	area, err := projectArea(req.Geometry, geoCRS, outCRS)
	if err != nil {
		return nil, err
	}

	endpoint := s.cfg.Services.ImageServer + "/exportImage"
	r, err := s.fetchStrips(ctx, area, req.Resolution, outCRS, func(ctx context.Context, st strip) ([]byte, error) {
		b := st.bound
		body, err := s.client.Bytes(ctx, fetch.Request{
			Service: "image",
			URL:     endpoint,
			Params: url.Values{
				"bbox":          {joinFloats([]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]})},
				"bboxSR":        {strconv.Itoa(code)},
				"imageSR":       {strconv.Itoa(code)},
				"size":          {fmt.Sprintf("%d,%d", st.width, st.height)},
				"format":        {"tiff"},
				"pixelType":     {"F32"},
				"interpolation": {"RSP_BilinearInterpolation"},
				"f":             {"image"},
			},
		})
		if err != nil {
			return nil, err
		}
		if isXML(body) || (len(body) > 0 && body[0] == '{') {
			return nil, &fetch.ServiceError{Service: "image", URL: endpoint, Err: fmt.Errorf("unexpected response: %s", truncate(body))}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	r.Name = "elevation"
	r.Attrs = layerAttrs("DEM")
	r.Attrs["resolution"] = strconv.FormatFloat(req.Resolution, 'g', -1, 64)
	return r, nil
}
