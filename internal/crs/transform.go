package crs

import (
	"fmt"
	"sync"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
)

// densify is the number of points sampled along each edge of a bound.
const densify = 21

var transformers sync.Map // "src|dst" -> proj.Transformer

func transformer(src, dst CRS) (proj.Transformer, error) {
	key := string(src) + "|" + string(dst)
	if t, ok := transformers.Load(key); ok {
		return t.(proj.Transformer), nil
	}

	srcDef, err := src.Proj4()
	if err != nil {
		return nil, err
	}
	dstDef, err := dst.Proj4()
	if err != nil {
		return nil, err
	}

	srcSR, err := proj.Parse(srcDef)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src, err)
	}
	dstSR, err := proj.Parse(dstDef)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", dst, err)
	}

	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("transform %s -> %s: %w", src, dst, err)
	}

	transformers.Store(key, t)
	return t, nil
}

// Transform reprojects coordinate arrays from src to dst.
// The inputs are not modified. Transverse Mercator targets such as UTM zones
// drift by kilometers for points far outside the zone.
func Transform(xs, ys []float64, src, dst CRS) ([]float64, []float64, error) {
	if len(xs) != len(ys) {
		return nil, nil, fmt.Errorf("coordinate length mismatch: %d x, %d y", len(xs), len(ys))
	}

	ox := make([]float64, len(xs))
	oy := make([]float64, len(ys))
	if src.Equal(dst) {
		copy(ox, xs)
		copy(oy, ys)
		return ox, oy, nil
	}

	t, err := transformer(src, dst)
	if err != nil {
		return nil, nil, err
	}

	for i := range xs {
		x, y, err := t(xs[i], ys[i])
		if err != nil {
			return nil, nil, fmt.Errorf("point %d (%g, %g): %w", i, xs[i], ys[i], err)
		}
		ox[i], oy[i] = x, y
	}
	return ox, oy, nil
}

// TransformPoints reprojects points from src to dst.
func TransformPoints(pts []orb.Point, src, dst CRS) ([]orb.Point, error) {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p[0], p[1]
	}

	ox, oy, err := Transform(xs, ys, src, dst)
	if err != nil {
		return nil, err
	}

	out := make([]orb.Point, len(pts))
	for i := range out {
		out[i] = orb.Point{ox[i], oy[i]}
	}
	return out, nil
}

// TransformLine reprojects a line from src to dst.
func TransformLine(ls orb.LineString, src, dst CRS) (orb.LineString, error) {
	pts, err := TransformPoints(ls, src, dst)
	if err != nil {
		return nil, err
	}
	return orb.LineString(pts), nil
}

// TransformBound reprojects a bound by densifying its edges, so curved
// edges in the target system are still enclosed.
func TransformBound(b orb.Bound, src, dst CRS) (orb.Bound, error) {
	if src.Equal(dst) {
		return b, nil
	}

	pts := make([]orb.Point, 0, 4*densify)
	for i := range densify {
		f := float64(i) / float64(densify-1)
		x := b.Min[0] + f*(b.Max[0]-b.Min[0])
		y := b.Min[1] + f*(b.Max[1]-b.Min[1])
		pts = append(pts,
			orb.Point{x, b.Min[1]},
			orb.Point{x, b.Max[1]},
			orb.Point{b.Min[0], y},
			orb.Point{b.Max[0], y},
		)
	}

	out, err := TransformPoints(pts, src, dst)
	if err != nil {
		return orb.Bound{}, err
	}
	return orb.MultiPoint(out).Bound(), nil
}
