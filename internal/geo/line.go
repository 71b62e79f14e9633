package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var (
	// ErrInvalidGeometryType is returned for geometries of an unexpected type.
	ErrInvalidGeometryType = errors.New("invalid geometry type")
	// ErrUnmergeableGeometry is returned when a MultiLineString does not form a single path.
	ErrUnmergeableGeometry = errors.New("MultiLineString cannot be merged into a single line")
)

// ToPath validates g and returns it as a single path.
// A MultiLineString is merged end to end; segments may be reversed to connect.
func ToPath(g orb.Geometry) (orb.LineString, error) {
	var ls orb.LineString

	switch v := g.(type) {
	case orb.LineString:
		ls = v
	case orb.MultiLineString:
		merged, err := Merge(v)
		if err != nil {
			return nil, err
		}
		ls = merged
	default:
		return nil, fmt.Errorf("%w: want LineString or MultiLineString, got %T", ErrInvalidGeometryType, g)
	}

	if len(ls) < 2 {
		return nil, fmt.Errorf("%w: line needs at least two vertices, got %d", ErrInvalidGeometryType, len(ls))
	}
	return ls, nil
}

// Merge joins the lines of mls into one path by matching endpoints.
func Merge(mls orb.MultiLineString) (orb.LineString, error) {
	parts := make([]orb.LineString, 0, len(mls))
	for _, l := range mls {
		if len(l) > 0 {
			parts = append(parts, l)
		}
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrUnmergeableGeometry)
	}

	path := append(orb.LineString(nil), parts[0]...)
	used := make([]bool, len(parts))
	used[0] = true

	for joined := 1; joined < len(parts); joined++ {
		found := false
		for i, p := range parts {
			if used[i] {
				continue
			}

			head, tail := path[0], path[len(path)-1]
			switch {
			case p[0].Equal(tail):
				path = append(path, p[1:]...)
			case p[len(p)-1].Equal(tail):
				path = append(path, reversed(p)[1:]...)
			case p[len(p)-1].Equal(head):
				path = append(append(orb.LineString(nil), p[:len(p)-1]...), path...)
			case p[0].Equal(head):
				path = append(reversed(p)[:len(p)-1], path...)
			default:
				continue
			}

			used[i] = true
			found = true
			break
		}

		if !found {
			return nil, fmt.Errorf("%w: %d of %d lines are disconnected",
				ErrUnmergeableGeometry, len(parts)-joined, len(parts))
		}
	}

	return path, nil
}

// Length returns the planar length of the path.
func Length(ls orb.LineString) float64 {
	return planar.Length(ls)
}

func reversed(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[len(ls)-1-i] = p
	}
	return out
}
