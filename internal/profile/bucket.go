package profile

import (
	"math"
	"slices"
)

// Missing marks a bin without any sample.
const Missing = -1

// Bucket groups distances into consecutive bins of width spacing and returns,
// for each bin, the index of the last sample that falls in it.
//
// Bin edges are 0, spacing, 2*spacing, ... up to the first edge past the
// largest distance minus one step, and each bin is closed on the right:
// (i*spacing, (i+1)*spacing]. A sample at distance 0 belongs to no bin.
func Bucket(dist []float64, spacing float64) []int {
	if len(dist) == 0 || !(spacing > 0) {
		return nil
	}

	maxDist := slices.Max(dist)
	edges := int(math.Ceil((maxDist + spacing) / spacing))
	bins := edges - 1
	if bins <= 0 {
		return []int{}
	}

	idx := make([]int, bins)
	for i := range idx {
		idx[i] = Missing
	}

	edge := func(i int) float64 { return float64(i) * spacing }
	for j, d := range dist {
		if !(d > 0) {
			continue
		}

		b := int(math.Ceil(d/spacing)) - 1
		if b >= 0 && d <= edge(b) {
			b--
		}
		if d > edge(b+1) {
			b++
		}
		if b < 0 || b >= bins {
			continue
		}
		idx[b] = j
	}
	return idx
}

// HasMissing reports whether any bin is empty.
func HasMissing(idx []int) bool {
	return slices.Contains(idx, Missing)
}
