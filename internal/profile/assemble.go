package profile

import (
	"fmt"
	"math"

	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/geo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Point is one profile record.
type Point struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Distance  float64 `json:"distance"`
	Elevation float64 `json:"elevation"`
}

// Profile is an ordered sequence of points along a path.
// X and Y are in CRS; distance is in meters of the working projection.
type Profile struct {
	CRS    crs.CRS `json:"crs"`
	Points []Point `json:"points"`
}

// Stats summarizes the elevations of a profile. NaN elevations are skipped.
type Stats struct {
	Length       float64 `json:"length"`
	MinElevation float64 `json:"min_elevation"`
	MaxElevation float64 `json:"max_elevation"`
	Mean         float64 `json:"mean_elevation"`
	Gain         float64 `json:"gain"`
	Loss         float64 `json:"loss"`
	Valid        int     `json:"valid"`
}

// Assemble zips the columns into a profile, keeping their order.
func Assemble(elevation, xs, ys, distance []float64, c crs.CRS) (*Profile, error) {
	n := len(elevation)
	if len(xs) != n || len(ys) != n || len(distance) != n {
		return nil, fmt.Errorf("profile columns differ in length: elevation %d, x %d, y %d, distance %d",
			n, len(xs), len(ys), len(distance))
	}

	p := &Profile{CRS: c, Points: make([]Point, n)}
	for i := range n {
		p.Points[i] = Point{X: xs[i], Y: ys[i], Distance: distance[i], Elevation: elevation[i]}
	}
	return p, nil
}

// Len returns the number of points.
func (p *Profile) Len() int {
	return len(p.Points)
}

// Columns splits the profile back into x, y, distance and elevation.
func (p *Profile) Columns() (xs, ys, distance, elevation []float64) {
	n := len(p.Points)
	xs, ys = make([]float64, n), make([]float64, n)
	distance, elevation = make([]float64, n), make([]float64, n)
	for i, pt := range p.Points {
		xs[i], ys[i], distance[i], elevation[i] = pt.X, pt.Y, pt.Distance, pt.Elevation
	}
	return xs, ys, distance, elevation
}

// Stats computes summary values of the profile.
func (p *Profile) Stats() Stats {
	var s Stats
	if len(p.Points) == 0 {
		return s
	}
	s.Length = p.Points[len(p.Points)-1].Distance

	valid := make([]float64, 0, len(p.Points))
	for _, pt := range p.Points {
		if !math.IsNaN(pt.Elevation) {
			valid = append(valid, pt.Elevation)
		}
	}
	s.Valid = len(valid)
	if len(valid) == 0 {
		s.MinElevation, s.MaxElevation, s.Mean = math.NaN(), math.NaN(), math.NaN()
		return s
	}

	s.MinElevation = floats.Min(valid)
	s.MaxElevation = floats.Max(valid)
	s.Mean = stat.Mean(valid, nil)
	for i := 1; i < len(valid); i++ {
		if d := valid[i] - valid[i-1]; d > 0 {
			s.Gain += d
		} else {
			s.Loss -= d
		}
	}
	return s
}

// FeatureCollection returns the profile as GeoJSON points. NaN elevations
// are written as null.
func (p *Profile) FeatureCollection() *geo.GeoJSONFeatureCollection {
	fc := geo.NewFeatureCollection(len(p.Points))
	for _, pt := range p.Points {
		var elev any = pt.Elevation
		if math.IsNaN(pt.Elevation) {
			elev = nil
		}
		fc.AddPoint(pt.X, pt.Y, map[string]any{
			"distance":  pt.Distance,
			"elevation": elev,
		})
	}
	return fc
}
