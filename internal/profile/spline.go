// Package profile builds elevation profiles along line paths: the path is
// resampled into points at a fixed distance spacing and each point is paired
// with the elevation read from a DEM.
package profile

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/geo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// Spline is a dense sampling of a smooth curve through a path.
type Spline struct {
	X        []float64 `json:"x"`
	Y        []float64 `json:"y"`
	Distance []float64 `json:"distance"`
}

// Len returns the number of samples.
func (s *Spline) Len() int {
	return len(s.X)
}

// Select returns the samples at idx, in order.
func (s *Spline) Select(idx []int) *Spline {
	out := &Spline{
		X:        make([]float64, len(idx)),
		Y:        make([]float64, len(idx)),
		Distance: make([]float64, len(idx)),
	}
	for i, j := range idx {
		out.X[i], out.Y[i], out.Distance[i] = s.X[j], s.Y[j], s.Distance[j]
	}
	return out
}

// NewSpline evaluates a parametric interpolating spline through the vertices
// of path at n evenly spaced parameter values. The curve is parameterized by
// normalized chord length and has degree min(3, vertices-1): a not-a-knot
// cubic for four or more distinct vertices, a parabola for three and a
// straight segment for two. Distance holds the cumulative straight-line
// length between samples.
func NewSpline(path orb.LineString, n int) *Spline {
	s := &Spline{
		X:        make([]float64, max(n, 0)),
		Y:        make([]float64, max(n, 0)),
		Distance: make([]float64, max(n, 0)),
	}
	if n <= 0 || len(path) == 0 {
		return s
	}

	xs, ys, u := parameterize(path)
	if len(u) < 2 {
		for i := range n {
			s.X[i], s.Y[i] = xs[0], ys[0]
		}
		return s
	}

	px, py := fit(u, xs), fit(u, ys)
	for i, t := range geo.Linspace(0, 1, n) {
		s.X[i], s.Y[i] = px.Predict(t), py.Predict(t)
	}

	steps := make([]float64, n)
	for i := 1; i < n; i++ {
		steps[i] = math.Hypot(s.X[i]-s.X[i-1], s.Y[i]-s.Y[i-1])
	}
	floats.CumSum(s.Distance, steps)
	return s
}

// parameterize drops repeated vertices and returns the remaining coordinates
// with their normalized chord length parameter, which is strictly increasing.
func parameterize(path orb.LineString) (xs, ys, u []float64) {
	xs = []float64{path[0][0]}
	ys = []float64{path[0][1]}
	acc := []float64{0}

	for _, p := range path[1:] {
		last := len(xs) - 1
		d := math.Hypot(p[0]-xs[last], p[1]-ys[last])
		if d == 0 || acc[last]+d <= acc[last] {
			continue
		}
		xs = append(xs, p[0])
		ys = append(ys, p[1])
		acc = append(acc, acc[last]+d)
	}

	if len(xs) < 2 {
		return xs, ys, nil
	}

	total := acc[len(acc)-1]
	kx, ky := xs[:1], ys[:1]
	u = []float64{0}
	for i := 1; i < len(acc); i++ {
		t := acc[i] / total
		if i == len(acc)-1 {
			t = 1
		} else if t <= u[len(u)-1] || t >= 1 {
			continue
		}
		kx = append(kx, xs[i])
		ky = append(ky, ys[i])
		u = append(u, t)
	}
	return kx, ky, u
}

// fit returns the interpolant of v over the strictly increasing u.
func fit(u, v []float64) interp.Predictor {
	switch len(u) {
	case 2:
		return linear(u, v)
	case 3:
		return newParabola(u, v)
	}

	nak := &interp.NotAKnotCubic{}
	if err := nak.Fit(u, v); err != nil {
		log.Debug().Err(err).Int("vertices", len(u)).Msg("Cubic spline fit failed, using linear segments")
		return linear(u, v)
	}
	return nak
}

func linear(u, v []float64) interp.Predictor {
	var pl interp.PiecewiseLinear
	_ = pl.Fit(u, v) // never fails for two or more increasing values
	return pl
}

// parabola is the quadratic through three points, in Lagrange form.
type parabola struct {
	u [3]float64
	w [3]float64
}

func newParabola(u, v []float64) parabola {
	var p parabola
	copy(p.u[:], u)
	for i := range 3 {
		den := 1.0
		for j := range 3 {
			if j != i {
				den *= u[i] - u[j]
			}
		}
		p.w[i] = v[i] / den
	}
	return p
}

func (p parabola) Predict(t float64) float64 {
	var sum float64
	for i := range 3 {
		term := p.w[i]
		for j := range 3 {
			if j != i {
				term *= t - p.u[j]
			}
		}
		sum += term
	}
	return sum
}
