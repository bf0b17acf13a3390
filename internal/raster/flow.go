package raster

import "fmt"

// Outlet marks a cell with no downslope neighbour
const Outlet = -1

// FlowDirection computes the D8 downslope neighbour of every valid cell:
// the neighbour with the steepest drop per unit distance. Cells without a
// lower neighbour drain out of the grid and are marked Outlet, as are
// nodata cells.
func FlowDirection(dem *Grid) []int {
	ds := make([]int, dem.Len())
	for i := range ds {
		ds[i] = Outlet
		if !dem.Valid(i) {
			continue
		}
		z := dem.Values[i]
		best := 0.0
		dem.neighbours(i, func(j int, d float64) {
			if !dem.Valid(j) {
				return
			}
			if slope := (z - dem.Values[j]) / d; slope > best {
				best = slope
				ds[i] = j
			}
		})
	}
	return ds
}

// Accumulation counts, for every cell, the cells draining through it
// (itself included). Cells are visited in a topologically safe order built
// by repeatedly removing cells with no remaining upslope contributors; the
// order is returned as well. A cycle in ds is reported as an error.
func Accumulation(dem *Grid, ds []int) ([]float64, []int, error) {
	n := dem.Len()
	upCount := make([]int, n)
	for i, j := range ds {
		if j != Outlet && dem.Valid(i) {
			upCount[j]++
		}
	}

	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if dem.Valid(i) && upCount[i] == 0 {
			order = append(order, i)
		}
	}

	acc := make([]float64, n)
	for k := 0; k < len(order); k++ {
		i := order[k]
		acc[i]++
		if j := ds[i]; j != Outlet {
			acc[j] += acc[i]
			upCount[j]--
			if upCount[j] == 0 {
				order = append(order, j)
			}
		}
	}

	valid := 0
	for i := 0; i < n; i++ {
		if dem.Valid(i) {
			valid++
		}
	}
	if len(order) != valid {
		return nil, nil, fmt.Errorf("flow direction contains a cycle: ordered %d of %d cells", len(order), valid)
	}
	return acc, order, nil
}
