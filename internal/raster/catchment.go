package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
)

// ErrNoResult is returned when a delineation produces no cells
var ErrNoResult = errors.New("raster delineation produced no result")

// Burn lowers every cell crossed by the lines by depth and returns the mask
// of burned cells. Lines are sampled at a quarter cell.
func Burn(dem *Grid, lines [][]spatial.XY, depth float64) []bool {
	burned := make([]bool, dem.Len())
	step := dem.CellSize / 4

	mark := func(p spatial.XY) {
		if i, ok := dem.CellAt(p); ok && dem.Valid(i) && !burned[i] {
			burned[i] = true
			dem.Values[i] -= depth
		}
	}

	for _, line := range lines {
		for k := 1; k < len(line); k++ {
			a, b := line[k-1], line[k]
			segLen := math.Hypot(b.X-a.X, b.Y-a.Y)
			steps := int(math.Ceil(segLen / step))
			for s := 0; s <= steps; s++ {
				t := 0.0
				if steps > 0 {
					t = float64(s) / float64(steps)
				}
				mark(spatial.XY{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)})
			}
		}
		if len(line) == 1 {
			mark(line[0])
		}
	}
	return burned
}

// Snap moves p to the highest accumulation cell within radius. Burned cells
// take priority over unburned ones, so a point beside the stream snaps onto
// it rather than onto a steeper gully.
func Snap(dem *Grid, acc []float64, burned []bool, p spatial.XY, radius float64) (int, error) {
	centre, ok := dem.CellAt(p)
	if !ok {
		return 0, fmt.Errorf("pour point %v outside DEM extent", p)
	}

	reach := int(math.Ceil(radius / dem.CellSize))
	col0, row0 := dem.ColRow(centre)

	best, bestBurned := -1, false
	for row := row0 - reach; row <= row0+reach; row++ {
		for col := col0 - reach; col <= col0+reach; col++ {
			if col < 0 || col >= dem.Cols || row < 0 || row >= dem.Rows {
				continue
			}
			i := dem.Index(col, row)
			if !dem.Valid(i) {
				continue
			}
			c := dem.Center(i)
			if math.Hypot(c.X-p.X, c.Y-p.Y) > radius && i != centre {
				continue
			}
			isBurned := burned != nil && burned[i]
			switch {
			case best < 0,
				isBurned && !bestBurned,
				isBurned == bestBurned && acc[i] > acc[best]:
				best, bestBurned = i, isBurned
			}
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("no valid cell within %v of pour point: %w", radius, ErrNoResult)
	}
	return best, nil
}

// Upstream marks every cell draining to outlet, outlet included
func Upstream(ds []int, outlet int) []bool {
	up := make([][]int, len(ds))
	for i, j := range ds {
		if j != Outlet {
			up[j] = append(up[j], i)
		}
	}

	mask := make([]bool, len(ds))
	mask[outlet] = true
	queue := []int{outlet}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, u := range up[i] {
			if !mask[u] {
				mask[u] = true
				queue = append(queue, u)
			}
		}
	}
	return mask
}

// Polygonize converts a cell mask to a polygon. Each row contributes one
// rectangle per run of set cells; the rectangles are then dissolved.
func Polygonize(g *Grid, mask []bool) (geom.Geometry, error) {
	var rects []geom.Geometry
	for row := 0; row < g.Rows; row++ {
		top := g.YLL + float64(g.Rows-row)*g.CellSize
		for col := 0; col < g.Cols; {
			if !mask[g.Index(col, row)] {
				col++
				continue
			}
			start := col
			for col < g.Cols && mask[g.Index(col, row)] {
				col++
			}
			r, err := geom.UnmarshalWKT(spatial.RectWKT(spatial.Bounds{
				MinX: g.XLL + float64(start)*g.CellSize,
				MinY: top - g.CellSize,
				MaxX: g.XLL + float64(col)*g.CellSize,
				MaxY: top,
			}))
			if err != nil {
				return geom.Geometry{}, fmt.Errorf("failed to build cell run: %w", err)
			}
			rects = append(rects, r)
		}
	}
	if len(rects) == 0 {
		return geom.Geometry{}, ErrNoResult
	}
	return spatial.UnionAll(rects)
}
