package raster

import (
	"fmt"
	"math"

	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
)

// DefaultNoData marks cells with no elevation
const DefaultNoData = -9999.0

// Grid is a single band raster in projected coordinates. Values are stored
// row-major starting at the top (north) row.
type Grid struct {
	Cols, Rows int
	XLL, YLL   float64 // lower left corner of the lower left cell
	CellSize   float64
	NoData     float64
	Values     []float64
}

// NewGrid allocates a grid covering b, filled with nodata
func NewGrid(b spatial.Bounds, cellSize float64) (*Grid, error) {
	if cellSize <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %v", cellSize)
	}
	cols := int(math.Ceil(b.Width() / cellSize))
	rows := int(math.Ceil(b.Height() / cellSize))
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("empty grid extent %+v", b)
	}

	g := &Grid{
		Cols:     cols,
		Rows:     rows,
		XLL:      b.MinX,
		YLL:      b.MinY,
		CellSize: cellSize,
		NoData:   DefaultNoData,
		Values:   make([]float64, cols*rows),
	}
	for i := range g.Values {
		g.Values[i] = g.NoData
	}
	return g, nil
}

// Len returns the number of cells
func (g *Grid) Len() int { return g.Cols * g.Rows }

// Index returns the cell index of (col, row), with row 0 at the top
func (g *Grid) Index(col, row int) int { return row*g.Cols + col }

// ColRow splits a cell index
func (g *Grid) ColRow(i int) (int, int) { return i % g.Cols, i / g.Cols }

// Bounds returns the outer extent of the grid
func (g *Grid) Bounds() spatial.Bounds {
	return spatial.Bounds{
		MinX: g.XLL,
		MinY: g.YLL,
		MaxX: g.XLL + float64(g.Cols)*g.CellSize,
		MaxY: g.YLL + float64(g.Rows)*g.CellSize,
	}
}

// Center returns the centre coordinate of cell i
func (g *Grid) Center(i int) spatial.XY {
	col, row := g.ColRow(i)
	return spatial.XY{
		X: g.XLL + (float64(col)+0.5)*g.CellSize,
		Y: g.YLL + (float64(g.Rows-row)-0.5)*g.CellSize,
	}
}

// CellAt returns the index of the cell containing p
func (g *Grid) CellAt(p spatial.XY) (int, bool) {
	col := int(math.Floor((p.X - g.XLL) / g.CellSize))
	row := g.Rows - 1 - int(math.Floor((p.Y-g.YLL)/g.CellSize))
	if col < 0 || col >= g.Cols || row < 0 || row >= g.Rows {
		return 0, false
	}
	return g.Index(col, row), true
}

// Valid reports whether cell i holds data
func (g *Grid) Valid(i int) bool {
	v := g.Values[i]
	return v != g.NoData && !math.IsNaN(v)
}

// Clone returns a deep copy
func (g *Grid) Clone() *Grid {
	c := *g
	c.Values = append([]float64(nil), g.Values...)
	return &c
}

// Window copies the cells overlapping b into a new grid aligned with g
func (g *Grid) Window(b spatial.Bounds) (*Grid, error) {
	gb := g.Bounds()
	if !gb.Intersects(b) {
		return nil, fmt.Errorf("window %+v is outside grid %+v", b, gb)
	}

	c0 := int(math.Floor((math.Max(b.MinX, gb.MinX) - g.XLL) / g.CellSize))
	c1 := int(math.Ceil((math.Min(b.MaxX, gb.MaxX) - g.XLL) / g.CellSize))
	// rows count from the top
	r0 := int(math.Floor((gb.MaxY - math.Min(b.MaxY, gb.MaxY)) / g.CellSize))
	r1 := int(math.Ceil((gb.MaxY - math.Max(b.MinY, gb.MinY)) / g.CellSize))
	c1 = min(c1, g.Cols)
	r1 = min(r1, g.Rows)
	if c1 <= c0 || r1 <= r0 {
		return nil, fmt.Errorf("window %+v covers no cells", b)
	}

	w := &Grid{
		Cols:     c1 - c0,
		Rows:     r1 - r0,
		XLL:      g.XLL + float64(c0)*g.CellSize,
		YLL:      gb.MaxY - float64(r1)*g.CellSize,
		CellSize: g.CellSize,
		NoData:   g.NoData,
		Values:   make([]float64, (c1-c0)*(r1-r0)),
	}
	for row := r0; row < r1; row++ {
		copy(w.Values[(row-r0)*w.Cols:(row-r0+1)*w.Cols], g.Values[g.Index(c0, row):g.Index(c0, row)+w.Cols])
	}
	return w, nil
}

// d8 neighbour offsets, clockwise from east
var d8 = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}

// neighbours calls fn for each in-grid D8 neighbour of i with its distance
// in cell units.
func (g *Grid) neighbours(i int, fn func(j int, dist float64)) {
	col, row := g.ColRow(i)
	for _, o := range d8 {
		c, r := col+o[0], row+o[1]
		if c < 0 || c >= g.Cols || r < 0 || r >= g.Rows {
			continue
		}
		d := 1.0
		if o[0] != 0 && o[1] != 0 {
			d = math.Sqrt2
		}
		fn(g.Index(c, r), d)
	}
}

// onEdge reports whether i touches the grid border or a nodata cell
func (g *Grid) onEdge(i int) bool {
	col, row := g.ColRow(i)
	if col == 0 || row == 0 || col == g.Cols-1 || row == g.Rows-1 {
		return true
	}
	edge := false
	g.neighbours(i, func(j int, _ float64) {
		if !g.Valid(j) {
			edge = true
		}
	})
	return edge
}
