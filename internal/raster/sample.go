package raster

import (
	"fmt"
	"math"
)

// Method selects how values are read between cell centers.
type Method int

const (
	// Nearest returns the value of the cell containing the coordinate.
	Nearest Method = iota
	// Linear interpolates bilinearly between the four surrounding cell centers.
	Linear
)

// ParseMethod converts a configuration value into a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "nearest":
		return Nearest, nil
	case "linear":
		return Linear, nil
	}
	return Nearest, fmt.Errorf("unknown sampling method %q", s)
}

func (m Method) String() string {
	if m == Linear {
		return "linear"
	}
	return "nearest"
}

// Sample returns the value of the cell containing x, y.
// Coordinates outside the grid return the nodata value.
func (r *Raster) Sample(x, y float64) float64 {
	fc, fr := r.cell(x, y)
	if math.IsNaN(fc) || math.IsNaN(fr) {
		return r.NoData
	}

	col, row := int(math.Floor(fc)), int(math.Floor(fr))
	if col < 0 || row < 0 || col >= r.Width || row >= r.Height {
		return r.NoData
	}
	return r.At(col, row)
}

// Interp interpolates bilinearly between cell centers.
// Coordinates outside the hull of cell centers, or next to a nodata cell,
// return the nodata value.
func (r *Raster) Interp(x, y float64) float64 {
	fc, fr := r.cell(x, y)
	fc -= 0.5
	fr -= 0.5
	if !(fc >= 0 && fr >= 0 && fc <= float64(r.Width-1) && fr <= float64(r.Height-1)) {
		return r.NoData
	}

	c0, r0 := int(math.Floor(fc)), int(math.Floor(fr))
	c1, r1 := min(c0+1, r.Width-1), min(r0+1, r.Height-1)
	tx, ty := fc-float64(c0), fr-float64(r0)

	v00, v10 := r.At(c0, r0), r.At(c1, r0)
	v01, v11 := r.At(c0, r1), r.At(c1, r1)
	if r.IsNoData(v00) || r.IsNoData(v10) || r.IsNoData(v01) || r.IsNoData(v11) {
		return r.NoData
	}

	top := v00*(1-tx) + v10*tx
	bottom := v01*(1-tx) + v11*tx
	return top*(1-ty) + bottom*ty
}

// Value reads x, y with the given method.
func (r *Raster) Value(x, y float64, m Method) float64 {
	if m == Linear {
		return r.Interp(x, y)
	}
	return r.Sample(x, y)
}

// Values reads every coordinate pair with the given method.
func (r *Raster) Values(xs, ys []float64, m Method) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		out[i] = r.Value(xs[i], ys[i], m)
	}
	return out
}
