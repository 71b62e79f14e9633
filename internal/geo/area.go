package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Area is a region of interest: a bounding box or a (multi)polygon.
type Area struct {
	Polygons orb.MultiPolygon // empty for a plain bounding box
	Bound    orb.Bound
}

// ToArea validates g as a region of interest.
func ToArea(g orb.Geometry) (Area, error) {
	switch v := g.(type) {
	case orb.Bound:
		return Area{Bound: v}, nil
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) < 3 {
			return Area{}, fmt.Errorf("%w: polygon has no exterior ring", ErrInvalidGeometryType)
		}
		return Area{Bound: v.Bound(), Polygons: orb.MultiPolygon{v}}, nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return Area{}, fmt.Errorf("%w: empty MultiPolygon", ErrInvalidGeometryType)
		}
		return Area{Bound: v.Bound(), Polygons: v}, nil
	}
	return Area{}, fmt.Errorf("%w: want Bound, Polygon or MultiPolygon, got %T", ErrInvalidGeometryType, g)
}

// IsBox reports whether the area is a plain bounding box.
func (a Area) IsBox() bool {
	return len(a.Polygons) == 0
}

// Contains reports whether p lies inside the area.
func (a Area) Contains(p orb.Point) bool {
	if a.IsBox() {
		return a.Bound.Contains(p)
	}
	return planar.MultiPolygonContains(a.Polygons, p)
}

// MapPoints returns a copy of the area with every vertex passed through fn.
// The bound of a box area is mapped by its corners only.
func (a Area) MapPoints(fn func([]orb.Point) ([]orb.Point, error)) (Area, error) {
	if a.IsBox() {
		pts, err := fn([]orb.Point{a.Bound.Min, a.Bound.Max})
		if err != nil {
			return Area{}, err
		}
		return Area{Bound: orb.MultiPoint(pts).Bound()}, nil
	}

	out := make(orb.MultiPolygon, len(a.Polygons))
	for i, poly := range a.Polygons {
		out[i] = make(orb.Polygon, len(poly))
		for j, ring := range poly {
			pts, err := fn(ring)
			if err != nil {
				return Area{}, err
			}
			out[i][j] = orb.Ring(pts)
		}
	}
	return Area{Bound: out.Bound(), Polygons: out}, nil
}
