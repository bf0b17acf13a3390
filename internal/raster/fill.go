package raster

import "container/heap"

// DefaultEpsilon is the minimum gradient imposed across filled flats
const DefaultEpsilon = 1e-4

type cell struct {
	i int
	z float64
}

type cellQueue []cell

func (q cellQueue) Len() int { return len(q) }
func (q cellQueue) Less(a, b int) bool {
	return q[a].z < q[b].z || (q[a].z == q[b].z && q[a].i < q[b].i)
}
func (q cellQueue) Swap(a, b int)       { q[a], q[b] = q[b], q[a] }
func (q *cellQueue) Push(x interface{}) { *q = append(*q, x.(cell)) }
func (q *cellQueue) Pop() interface{} {
	old := *q
	c := old[len(old)-1]
	*q = old[:len(old)-1]
	return c
}

// Fill removes depressions with a priority flood seeded from the grid edge
// and the cells bordering nodata. Each filled cell is raised to just above
// the cell it was reached from so flats keep a drainage gradient.
func Fill(dem *Grid, epsilon float64) *Grid {
	out := dem.Clone()
	closed := make([]bool, out.Len())
	q := &cellQueue{}

	for i := 0; i < out.Len(); i++ {
		if !out.Valid(i) {
			closed[i] = true
			continue
		}
		if out.onEdge(i) {
			closed[i] = true
			heap.Push(q, cell{i: i, z: out.Values[i]})
		}
	}

	for q.Len() > 0 {
		c := heap.Pop(q).(cell)
		out.neighbours(c.i, func(j int, _ float64) {
			if closed[j] {
				return
			}
			closed[j] = true
			floor := c.z + epsilon
			if epsilon == 0 {
				floor = c.z
			}
			if out.Values[j] < floor {
				out.Values[j] = floor
			}
			heap.Push(q, cell{i: j, z: out.Values[j]})
		})
	}
	return out
}
