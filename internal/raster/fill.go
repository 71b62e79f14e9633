package raster

import (
	"container/heap"
	"math"
)

type cellItem struct {
	idx int
	z   float64
}

type cellQueue []cellItem

func (q cellQueue) Len() int           { return len(q) }
func (q cellQueue) Less(i, j int) bool { return q[i].z < q[j].z }
func (q cellQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *cellQueue) Push(x any)        { *q = append(*q, x.(cellItem)) }

func (q *cellQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

var neighbors = [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}

// FillDepressions raises every closed depression to its spill elevation
// using priority-flood over 8-connected cells. Cells on the grid edge or next
// to nodata drain out. The receiver is not modified.
func (r *Raster) FillDepressions() *Raster {
	out := r.Clone()
	w, h := r.Width, r.Height
	done := make([]bool, len(out.Data))
	q := &cellQueue{}

	isEdge := func(col, row int) bool {
		if col == 0 || row == 0 || col == w-1 || row == h-1 {
			return true
		}
		for _, d := range neighbors {
			if out.IsNoData(out.At(col+d[0], row+d[1])) {
				return true
			}
		}
		return false
	}

	for row := range h {
		for col := range w {
			i := row*w + col
			if out.IsNoData(out.Data[i]) {
				done[i] = true
				continue
			}
			if isEdge(col, row) {
				done[i] = true
				heap.Push(q, cellItem{idx: i, z: out.Data[i]})
			}
		}
	}

	for q.Len() > 0 {
		c := heap.Pop(q).(cellItem)
		col, row := c.idx%w, c.idx/w
		for _, d := range neighbors {
			nc, nr := col+d[0], row+d[1]
			if nc < 0 || nr < 0 || nc >= w || nr >= h {
				continue
			}
			n := nr*w + nc
			if done[n] {
				continue
			}
			done[n] = true
			out.Data[n] = math.Max(out.Data[n], c.z)
			heap.Push(q, cellItem{idx: n, z: out.Data[n]})
		}
	}
	return out
}
