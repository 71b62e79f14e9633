package elevation

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/geo"
	"github.com/woozymasta/go3dep/internal/raster"
	"gonum.org/v1/gonum/stat"
)

// ElevationVar is the variable added to grids.
const ElevationVar = "elevation"

// AxisNames names the row and column dimensions of a grid.
type AxisNames struct {
	Y string `json:"y"`
	X string `json:"x"`
}

// DefaultAxes are the dimension names used when none are given.
var DefaultAxes = AxisNames{Y: "y", X: "x"}

// Grid is a rectilinear dataset. Every variable is indexed [y][x].
type Grid struct {
	Vars  map[string][][]float64 `json:"vars"`
	Attrs map[string]string      `json:"attrs,omitempty"`
	CRS   crs.CRS                `json:"crs"`
	Dims  AxisNames              `json:"dims"`
	X     []float64              `json:"x"`
	Y     []float64              `json:"y"`
}

// NewGrid returns an empty grid with the default axes.
func NewGrid(xs, ys []float64, c crs.CRS) *Grid {
	return &Grid{
		X:     xs,
		Y:     ys,
		CRS:   c,
		Dims:  DefaultAxes,
		Vars:  map[string][][]float64{},
		Attrs: map[string]string{},
	}
}

// ElevationByGrid interpolates a DEM at every node of the xs by ys mesh.
// With fill set, depressions of the DEM are filled first.
func (s *Service) ElevationByGrid(ctx context.Context, xs, ys []float64, c crs.CRS, res float64, fill bool) (*Grid, error) {
	if len(xs) == 0 || len(ys) == 0 {
		return nil, &InputValueError{Name: "coordinates", Given: fmt.Sprintf("%dx%d", len(ys), len(xs)), Valid: []string{"non-empty x and y"}}
	}
	c = orWGS84(c)

	mx := make([]float64, 0, len(xs)*len(ys))
	my := make([]float64, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			mx = append(mx, x)
			my = append(my, y)
		}
	}
	px, py, err := crs.Transform(mx, my, c, crs.Albers)
	if err != nil {
		return nil, fmt.Errorf("reproject grid: %w", err)
	}

	bound := geo.Buffer(geo.BoundOf(px, py), 2*res)
	dem, err := s.GetDEM(ctx, DEMRequest{Geometry: bound, GeoCRS: crs.Albers, CRS: crs.Albers, Resolution: res})
	if err != nil {
		return nil, err
	}
	if fill {
		dem = dem.FillDepressions()
	}

	g := NewGrid(xs, ys, c)
	values := dem.Values(px, py, raster.Linear)
	elev := make([][]float64, len(ys))
	for i := range ys {
		row := values[i*len(xs) : (i+1)*len(xs)]
		for j, v := range row {
			if dem.IsNoData(v) {
				row[j] = math.NaN()
			}
		}
		elev[i] = row
	}
	g.Vars[ElevationVar] = elev
	for k, v := range dem.Attrs {
		g.Attrs[k] = v
	}

	log.Debug().
		Int("rows", len(ys)).
		Int("cols", len(xs)).
		Float64("resolution", res).
		Bool("filled", fill).
		Msg("Grid elevation interpolated")

	return g, nil
}

// AddElevation adds an elevation variable to g. The axes must match the
// dimensions of g. A zero res is derived from the x spacing. Where mask is
// given, cells with a false mask are NaN.
func (s *Service) AddElevation(ctx context.Context, g *Grid, res float64, axes AxisNames, mask [][]bool) error {
	if g.CRS == "" {
		return ErrMissingCRS
	}
	if axes == (AxisNames{}) {
		axes = DefaultAxes
	}
	dims := g.Dims
	if dims == (AxisNames{}) {
		dims = DefaultAxes
	}
	if axes != dims {
		return &InputValueError{
			Name:  "axes",
			Given: axes.Y + "," + axes.X,
			Valid: []string{dims.Y + "," + dims.X},
		}
	}
	if mask != nil && !shapeMatches(mask, len(g.Y), len(g.X)) {
		return &InputValueError{Name: "mask", Given: "mismatched shape", Valid: []string{fmt.Sprintf("%dx%d", len(g.Y), len(g.X))}}
	}

	if res == 0 {
		var err error
		if res, err = gridResolution(g); err != nil {
			return err
		}
	}

	eg, err := s.ElevationByGrid(ctx, g.X, g.Y, g.CRS, res, false)
	if err != nil {
		return err
	}
	elev := eg.Vars[ElevationVar]
	if mask != nil {
		for i := range elev {
			for j := range elev[i] {
				if !mask[i][j] {
					elev[i][j] = math.NaN()
				}
			}
		}
	}

	if g.Vars == nil {
		g.Vars = map[string][][]float64{}
	}
	g.Vars[ElevationVar] = elev
	g.Dims = dims
	return nil
}

func shapeMatches(m [][]bool, rows, cols int) bool {
	if len(m) != rows {
		return false
	}
	for _, r := range m {
		if len(r) != cols {
			return false
		}
	}
	return true
}

// gridResolution returns the mean x spacing of g in meters.
func gridResolution(g *Grid) (float64, error) {
	if len(g.X) < 2 {
		return 0, &InputValueError{Name: "resolution", Given: "0", Valid: []string{"> 0 for single column grids"}}
	}
	steps := make([]float64, len(g.X)-1)
	for i := range steps {
		steps[i] = math.Abs(g.X[i+1] - g.X[i])
	}
	res := stat.Mean(steps, nil)
	if g.CRS.IsGeographic() && len(g.Y) > 0 {
		lat := stat.Mean(g.Y, nil) * math.Pi / 180
		res *= 111_320 * math.Cos(lat)
	}
	if !(res > 0) {
		return 0, &InputValueError{Name: "resolution", Given: fmt.Sprint(res), Valid: []string{"> 0"}}
	}
	return res, nil
}
