package spatial

import (
	"fmt"
	"math"

	"github.com/peterstace/simplefeatures/geom"
)

// HexCell is one flat-topped hexagon of a grid
type HexCell struct {
	Col, Row int
	Center   XY
	Geometry geom.Geometry
}

// HexCenters lays out flat-topped hexagon centres with the given edge length
// covering b. Odd columns are shifted up half a row.
func HexCenters(b Bounds, edge float64) ([]XY, [][2]int) {
	if edge <= 0 {
		return nil, nil
	}
	dx := 1.5 * edge
	dy := math.Sqrt(3) * edge

	cols := int(math.Ceil(b.Width()/dx)) + 2
	rows := int(math.Ceil(b.Height()/dy)) + 2

	centers := make([]XY, 0, cols*rows)
	index := make([][2]int, 0, cols*rows)
	for col := 0; col < cols; col++ {
		x := b.MinX - dx + float64(col)*dx
		offset := 0.0
		if col%2 == 1 {
			offset = dy / 2
		}
		for row := 0; row < rows; row++ {
			y := b.MinY - dy + float64(row)*dy + offset
			centers = append(centers, XY{X: x, Y: y})
			index = append(index, [2]int{col, row})
		}
	}
	return centers, index
}

// Hexagon returns the ring of a flat-topped hexagon
func Hexagon(center XY, edge float64) []XY {
	ring := make([]XY, 6)
	for i := range ring {
		a := float64(i) * math.Pi / 3
		ring[i] = XY{X: center.X + edge*math.Cos(a), Y: center.Y + edge*math.Sin(a)}
	}
	return ring
}

// HexCutout covers area with hexagons and clips each one to it. Cells that do
// not overlap the area are left out.
func HexCutout(area geom.Geometry, edge float64) ([]HexCell, error) {
	b, ok := BoundsOf(area)
	if !ok {
		return nil, ErrEmptyGeometry
	}
	if edge <= 0 {
		return nil, fmt.Errorf("hex edge must be positive, got %v", edge)
	}

	centers, index := HexCenters(b, edge)
	cells := make([]HexCell, 0, len(centers)/2)
	for i, c := range centers {
		if !b.Expand(edge).Contains(c) {
			continue
		}
		hex, err := geom.UnmarshalWKT(PolygonWKT([][]XY{Hexagon(c, edge)}))
		if err != nil {
			return nil, fmt.Errorf("failed to build hexagon: %w", err)
		}
		if !geom.Intersects(hex, area) {
			continue
		}
		clipped, err := geom.Intersection(hex, area)
		if err != nil {
			return nil, fmt.Errorf("failed to clip hexagon: %w", err)
		}
		clipped, err = Polygonal(clipped)
		if err != nil {
			return nil, err
		}
		if clipped.IsEmpty() {
			continue
		}
		cells = append(cells, HexCell{Col: index[i][0], Row: index[i][1], Center: c, Geometry: clipped})
	}
	return cells, nil
}
