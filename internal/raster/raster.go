// Package raster holds gridded elevation data and operations on it.
package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/woozymasta/go3dep/internal/crs"
)

// GeoTransform maps pixel corners to coordinates of a north-up grid.
// PixelHeight is negative when row 0 is the northern edge.
type GeoTransform struct {
	OriginX     float64 `json:"origin_x"`
	OriginY     float64 `json:"origin_y"`
	PixelWidth  float64 `json:"pixel_width"`
	PixelHeight float64 `json:"pixel_height"`
}

// Raster is a single band grid stored row-major from the top row.
type Raster struct {
	Attrs     map[string]string
	Name      string
	CRS       crs.CRS
	Data      []float64
	Transform GeoTransform
	Width     int
	Height    int
	NoData    float64
}

// New returns a raster filled with nodata.
func New(width, height int, gt GeoTransform, c crs.CRS, nodata float64) *Raster {
	r := &Raster{
		Width:     width,
		Height:    height,
		Transform: gt,
		CRS:       c,
		NoData:    nodata,
		Data:      make([]float64, width*height),
		Attrs:     map[string]string{},
	}
	for i := range r.Data {
		r.Data[i] = nodata
	}
	return r
}

// FromBound returns an empty north-up raster covering b with square cells of size res.
func FromBound(b orb.Bound, res float64, c crs.CRS, nodata float64) *Raster {
	w := max(int(math.Ceil((b.Max[0]-b.Min[0])/res)), 1)
	h := max(int(math.Ceil((b.Max[1]-b.Min[1])/res)), 1)
	return New(w, h, GeoTransform{
		OriginX:     b.Min[0],
		OriginY:     b.Max[1],
		PixelWidth:  res,
		PixelHeight: -res,
	}, c, nodata)
}

// At returns the value at col, row.
func (r *Raster) At(col, row int) float64 {
	return r.Data[row*r.Width+col]
}

// Set stores v at col, row.
func (r *Raster) Set(col, row int, v float64) {
	r.Data[row*r.Width+col] = v
}

// IsNoData reports whether v is the nodata value of r.
// NaN is always treated as nodata.
func (r *Raster) IsNoData(v float64) bool {
	return math.IsNaN(v) || v == r.NoData
}

// Center returns the coordinates of the center of a cell.
func (r *Raster) Center(col, row int) (x, y float64) {
	gt := r.Transform
	return gt.OriginX + (float64(col)+0.5)*gt.PixelWidth, gt.OriginY + (float64(row)+0.5)*gt.PixelHeight
}

// XCoords returns the x coordinate of every column center.
func (r *Raster) XCoords() []float64 {
	out := make([]float64, r.Width)
	for i := range out {
		out[i], _ = r.Center(i, 0)
	}
	return out
}

// YCoords returns the y coordinate of every row center.
func (r *Raster) YCoords() []float64 {
	out := make([]float64, r.Height)
	for i := range out {
		_, out[i] = r.Center(0, i)
	}
	return out
}

// Bound returns the extent covered by the cells.
func (r *Raster) Bound() orb.Bound {
	gt := r.Transform
	x0, x1 := gt.OriginX, gt.OriginX+float64(r.Width)*gt.PixelWidth
	y0, y1 := gt.OriginY, gt.OriginY+float64(r.Height)*gt.PixelHeight
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

// Resolution returns the absolute cell size.
func (r *Raster) Resolution() (float64, float64) {
	return math.Abs(r.Transform.PixelWidth), math.Abs(r.Transform.PixelHeight)
}

// cell returns the fractional column and row of a coordinate.
func (r *Raster) cell(x, y float64) (float64, float64) {
	gt := r.Transform
	return (x - gt.OriginX) / gt.PixelWidth, (y - gt.OriginY) / gt.PixelHeight
}

// MaskNoData replaces nodata with NaN. When the nodata value is negative,
// everything at or below it is masked as well.
func (r *Raster) MaskNoData() {
	nd := r.NoData
	for i, v := range r.Data {
		if v == nd || (nd < 0 && v < nd) {
			r.Data[i] = math.NaN()
		}
	}
	r.NoData = math.NaN()
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	out := *r
	out.Data = append([]float64(nil), r.Data...)
	out.Attrs = make(map[string]string, len(r.Attrs))
	for k, v := range r.Attrs {
		out.Attrs[k] = v
	}
	return &out
}

// Clip returns the cells intersecting b.
func (r *Raster) Clip(b orb.Bound) (*Raster, error) {
	c0, r0 := r.cell(b.Min[0], b.Max[1])
	c1, r1 := r.cell(b.Max[0], b.Min[1])
	if c0 > c1 {
		c0, c1 = c1, c0
	}
	if r0 > r1 {
		r0, r1 = r1, r0
	}

	colMin := max(int(math.Floor(c0)), 0)
	rowMin := max(int(math.Floor(r0)), 0)
	colMax := min(int(math.Ceil(c1)), r.Width)
	rowMax := min(int(math.Ceil(r1)), r.Height)
	if colMin >= colMax || rowMin >= rowMax {
		return nil, fmt.Errorf("bound %v does not intersect raster extent %v", b, r.Bound())
	}

	gt := r.Transform
	out := New(colMax-colMin, rowMax-rowMin, GeoTransform{
		OriginX:     gt.OriginX + float64(colMin)*gt.PixelWidth,
		OriginY:     gt.OriginY + float64(rowMin)*gt.PixelHeight,
		PixelWidth:  gt.PixelWidth,
		PixelHeight: gt.PixelHeight,
	}, r.CRS, r.NoData)
	out.Name = r.Name
	for k, v := range r.Attrs {
		out.Attrs[k] = v
	}

	for row := rowMin; row < rowMax; row++ {
		copy(out.Data[(row-rowMin)*out.Width:(row-rowMin+1)*out.Width], r.Data[row*r.Width+colMin:row*r.Width+colMax])
	}
	return out, nil
}

// Mosaic pastes parts sharing a CRS and cell size into one raster.
// Cells covered by several parts take the last valid value.
func Mosaic(parts ...*Raster) (*Raster, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("mosaic: no rasters")
	}
	if len(parts) == 1 {
		return parts[0], nil
	}

	first := parts[0]
	gt := first.Transform
	b := first.Bound()
	for _, p := range parts[1:] {
		if !p.CRS.Equal(first.CRS) {
			return nil, fmt.Errorf("mosaic: CRS mismatch %s != %s", p.CRS, first.CRS)
		}
		if !closeTo(p.Transform.PixelWidth, gt.PixelWidth) || !closeTo(p.Transform.PixelHeight, gt.PixelHeight) {
			return nil, fmt.Errorf("mosaic: cell size mismatch")
		}
		b = b.Union(p.Bound())
	}

	originY := b.Max[1]
	if gt.PixelHeight > 0 {
		originY = b.Min[1]
	}
	out := New(
		int(math.Round((b.Max[0]-b.Min[0])/math.Abs(gt.PixelWidth))),
		int(math.Round((b.Max[1]-b.Min[1])/math.Abs(gt.PixelHeight))),
		GeoTransform{OriginX: b.Min[0], OriginY: originY, PixelWidth: gt.PixelWidth, PixelHeight: gt.PixelHeight},
		first.CRS, first.NoData,
	)
	out.Name = first.Name
	for k, v := range first.Attrs {
		out.Attrs[k] = v
	}

	for _, p := range parts {
		dc := int(math.Round((p.Transform.OriginX - out.Transform.OriginX) / gt.PixelWidth))
		dr := int(math.Round((p.Transform.OriginY - out.Transform.OriginY) / gt.PixelHeight))
		for row := range p.Height {
			orow := row + dr
			if orow < 0 || orow >= out.Height {
				continue
			}
			for col := range p.Width {
				ocol := col + dc
				if ocol < 0 || ocol >= out.Width {
					continue
				}
				if v := p.At(col, row); !p.IsNoData(v) {
					out.Set(ocol, orow, v)
				}
			}
		}
	}
	return out, nil
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}
