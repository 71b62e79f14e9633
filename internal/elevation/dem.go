package elevation

import (
	"context"

	"github.com/woozymasta/go3dep/internal/raster"
)

// GetDEM returns a DEM over req.Geometry. The seamless products serve
// resolutions in StaticResolutions and the WMS serves the rest.
func (s *Service) GetDEM(ctx context.Context, req DEMRequest) (*raster.Raster, error) {
	if isStatic(req.Resolution) {
		return s.StaticDEM(ctx, req)
	}

	maps, err := s.GetMap(ctx, MapRequest{
		Geometry:   req.Geometry,
		GeoCRS:     req.GeoCRS,
		CRS:        req.CRS,
		Layers:     []string{"DEM"},
		Resolution: req.Resolution,
	})
	if err != nil {
		return nil, err
	}
	return maps[LayerName("DEM")], nil
}
