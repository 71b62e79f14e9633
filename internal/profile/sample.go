package profile

import (
	"github.com/woozymasta/go3dep/internal/raster"
)

// Sample reads the DEM at each coordinate. Coordinates must be in the DEM's
// CRS; points outside the DEM or on nodata cells get the DEM nodata value.
func Sample(dem *raster.Raster, xs, ys []float64, method raster.Method) []float64 {
	return dem.Values(xs, ys, method)
}
