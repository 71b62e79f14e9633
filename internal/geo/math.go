package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// DegToMPM converts slope from degrees to meter per meter.
func DegToMPM(deg float64) float64 {
	return math.Tan(deg * math.Pi / 180)
}

// DegToMPMSlice converts every value in place and returns the slice.
// NaN values stay NaN.
func DegToMPMSlice(values []float64) []float64 {
	for i, v := range values {
		values[i] = DegToMPM(v)
	}
	return values
}

// Buffer grows the bound by dist on every side.
func Buffer(b orb.Bound, dist float64) orb.Bound {
	return b.Pad(dist)
}

// BoundOf returns the bound of a set of coordinates.
func BoundOf(xs, ys []float64) orb.Bound {
	if len(xs) == 0 {
		return orb.Bound{}
	}

	b := orb.Bound{Min: orb.Point{xs[0], ys[0]}, Max: orb.Point{xs[0], ys[0]}}
	for i := 1; i < len(xs); i++ {
		b = b.Extend(orb.Point{xs[i], ys[i]})
	}
	return b
}

// Linspace returns n evenly spaced values over [start, stop].
// The last value is exactly stop.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}

	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
