package spatial

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/peterstace/simplefeatures/geom"
)

// ErrEmptyGeometry is returned when an operation yields no area or length
var ErrEmptyGeometry = errors.New("empty geometry")

// XY is a projected coordinate
type XY = geom.XY

// Bounds is an axis-aligned bounding box in projected coordinates
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// BoundsOf calculates the bounding box of every coordinate in g.
// Returns false for an empty geometry.
func BoundsOf(g geom.Geometry) (Bounds, bool) {
	seq := g.DumpCoordinates()
	if seq.Length() == 0 {
		return Bounds{}, false
	}

	first := seq.GetXY(0)
	b := Bounds{MinX: first.X, MinY: first.Y, MaxX: first.X, MaxY: first.Y}
	for i := 1; i < seq.Length(); i++ {
		b = b.extend(seq.GetXY(i))
	}
	return b, true
}

func (b Bounds) extend(p XY) Bounds {
	b.MinX = math.Min(b.MinX, p.X)
	b.MinY = math.Min(b.MinY, p.Y)
	b.MaxX = math.Max(b.MaxX, p.X)
	b.MaxY = math.Max(b.MaxY, p.Y)
	return b
}

// Expand grows the box by d on every side
func (b Bounds) Expand(d float64) Bounds {
	return Bounds{MinX: b.MinX - d, MinY: b.MinY - d, MaxX: b.MaxX + d, MaxY: b.MaxY + d}
}

// Union returns the smallest box covering both
func (b Bounds) Union(o Bounds) Bounds {
	return b.extend(XY{X: o.MinX, Y: o.MinY}).extend(XY{X: o.MaxX, Y: o.MaxY})
}

// Intersects reports whether two boxes overlap or touch
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Contains reports whether p falls inside or on the box
func (b Bounds) Contains(p XY) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

func (b Bounds) Width() float64  { return b.MaxX - b.MinX }
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Geometry returns the box as a polygon
func (b Bounds) Geometry() (geom.Geometry, error) {
	return geom.UnmarshalWKT(RectWKT(b))
}

// LineParts flattens a LineString or MultiLineString into vertex lists.
// Other geometry types yield nil.
func LineParts(g geom.Geometry) [][]XY {
	switch g.Type() {
	case geom.TypeLineString:
		return [][]XY{seqXY(g.MustAsLineString().Coordinates())}
	case geom.TypeMultiLineString:
		mls := g.MustAsMultiLineString()
		parts := make([][]XY, 0, mls.NumLineStrings())
		for i := 0; i < mls.NumLineStrings(); i++ {
			parts = append(parts, seqXY(mls.LineStringN(i).Coordinates()))
		}
		return parts
	}
	return nil
}

func seqXY(seq geom.Sequence) []XY {
	out := make([]XY, seq.Length())
	for i := range out {
		out[i] = seq.GetXY(i)
	}
	return out
}

// MergeParts joins line parts end to start into one vertex list, in order.
// Parts are expected to be contiguous, as consecutive stream segments are.
func MergeParts(parts [][]XY) []XY {
	var out []XY
	for _, p := range parts {
		if len(out) > 0 && len(p) > 0 && out[len(out)-1] == p[0] {
			p = p[1:]
		}
		out = append(out, p...)
	}
	return out
}

// PolylineLength returns the planar length of a vertex list
func PolylineLength(line []XY) float64 {
	var total float64
	for i := 1; i < len(line); i++ {
		total += dist(line[i-1], line[i])
	}
	return total
}

// Location is the closest point on a polyline to some input point
type Location struct {
	Point    XY
	Distance float64 // from the input point
	Along    float64 // distance along the line from its first vertex
	Fraction float64 // Along / line length, 0 for a degenerate line
	Segment  int     // index of the vertex starting the matched segment
}

// Locate projects p onto line
func Locate(line []XY, p XY) (Location, error) {
	if len(line) == 0 {
		return Location{}, ErrEmptyGeometry
	}
	if len(line) == 1 {
		return Location{Point: line[0], Distance: dist(line[0], p)}, nil
	}

	best := Location{Distance: math.Inf(1)}
	var walked float64
	for i := 1; i < len(line); i++ {
		a, b := line[i-1], line[i]
		segLen := dist(a, b)

		t := 0.0
		if segLen > 0 {
			t = ((p.X-a.X)*(b.X-a.X) + (p.Y-a.Y)*(b.Y-a.Y)) / (segLen * segLen)
			t = math.Max(0, math.Min(1, t))
		}
		q := XY{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
		if d := dist(p, q); d < best.Distance {
			best = Location{Point: q, Distance: d, Along: walked + t*segLen, Segment: i - 1}
		}
		walked += segLen
	}

	if walked > 0 {
		best.Fraction = best.Along / walked
	}
	return best, nil
}

// SubLine returns the part of line from distance along onwards
func SubLine(line []XY, along float64) []XY {
	if len(line) < 2 {
		return line
	}

	var walked float64
	for i := 1; i < len(line); i++ {
		segLen := dist(line[i-1], line[i])
		if walked+segLen >= along {
			t := 0.0
			if segLen > 0 {
				t = (along - walked) / segLen
			}
			a, b := line[i-1], line[i]
			start := XY{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
			out := []XY{start}
			if start != b {
				out = append(out, b)
			}
			return append(out, line[i+1:]...)
		}
		walked += segLen
	}
	return []XY{line[len(line)-1]}
}

// DirectionAt returns the unit vector of the line at distance along,
// pointing towards the last vertex.
func DirectionAt(line []XY, along float64) (XY, error) {
	var walked float64
	for i := 1; i < len(line); i++ {
		segLen := dist(line[i-1], line[i])
		if segLen == 0 {
			continue
		}
		if walked+segLen >= along || i == len(line)-1 {
			return XY{X: (line[i].X - line[i-1].X) / segLen, Y: (line[i].Y - line[i-1].Y) / segLen}, nil
		}
		walked += segLen
	}
	return XY{}, fmt.Errorf("line has no direction: %w", ErrEmptyGeometry)
}

// HalfPlane returns a square polygon of side 2*size lying on the side of the
// line through origin (perpendicular to dir) that dir points to.
func HalfPlane(origin, dir XY, size float64) (geom.Geometry, error) {
	n := XY{X: -dir.Y, Y: dir.X}
	ring := []XY{
		{X: origin.X + n.X*size, Y: origin.Y + n.Y*size},
		{X: origin.X - n.X*size, Y: origin.Y - n.Y*size},
		{X: origin.X - n.X*size + dir.X*2*size, Y: origin.Y - n.Y*size + dir.Y*2*size},
		{X: origin.X + n.X*size + dir.X*2*size, Y: origin.Y + n.Y*size + dir.Y*2*size},
	}
	return geom.UnmarshalWKT(PolygonWKT([][]XY{ring}))
}

func dist(a, b XY) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// PointWKT formats a point
func PointWKT(p XY) string {
	return "POINT(" + fmtXY(p) + ")"
}

// LineStringWKT formats a vertex list
func LineStringWKT(line []XY) string {
	var sb strings.Builder
	sb.WriteString("LINESTRING(")
	writeCoords(&sb, line)
	sb.WriteString(")")
	return sb.String()
}

// PolygonWKT formats rings, closing any that are open
func PolygonWKT(rings [][]XY) string {
	var sb strings.Builder
	sb.WriteString("POLYGON")
	writeRings(&sb, rings)
	return sb.String()
}

// MultiPolygonWKT formats a list of polygons, each a list of rings
func MultiPolygonWKT(polys [][][]XY) string {
	var sb strings.Builder
	sb.WriteString("MULTIPOLYGON(")
	for i, rings := range polys {
		if i > 0 {
			sb.WriteString(",")
		}
		writeRings(&sb, rings)
	}
	sb.WriteString(")")
	return sb.String()
}

// RectWKT formats a box as a polygon
func RectWKT(b Bounds) string {
	return PolygonWKT([][]XY{{
		{X: b.MinX, Y: b.MinY},
		{X: b.MaxX, Y: b.MinY},
		{X: b.MaxX, Y: b.MaxY},
		{X: b.MinX, Y: b.MaxY},
	}})
}

func writeRings(sb *strings.Builder, rings [][]XY) {
	sb.WriteString("(")
	for i, ring := range rings {
		if i > 0 {
			sb.WriteString(",")
		}
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			ring = append(ring[:len(ring):len(ring)], ring[0])
		}
		sb.WriteString("(")
		writeCoords(sb, ring)
		sb.WriteString(")")
	}
	sb.WriteString(")")
}

func writeCoords(sb *strings.Builder, coords []XY) {
	for i, p := range coords {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(fmtXY(p))
	}
}

func fmtXY(p XY) string {
	return strconv.FormatFloat(p.X, 'f', -1, 64) + " " + strconv.FormatFloat(p.Y, 'f', -1, 64)
}

// Polygons splits a polygonal geometry (or a collection) into its polygons
func Polygons(g geom.Geometry) []geom.Geometry {
	switch g.Type() {
	case geom.TypePolygon:
		if g.IsEmpty() {
			return nil
		}
		return []geom.Geometry{g}
	case geom.TypeMultiPolygon:
		mp := g.MustAsMultiPolygon()
		out := make([]geom.Geometry, 0, mp.NumPolygons())
		for i := 0; i < mp.NumPolygons(); i++ {
			p := mp.PolygonN(i)
			if !p.IsEmpty() {
				out = append(out, p.AsGeometry())
			}
		}
		return out
	case geom.TypeGeometryCollection:
		gc := g.MustAsGeometryCollection()
		var out []geom.Geometry
		for i := 0; i < gc.NumGeometries(); i++ {
			out = append(out, Polygons(gc.GeometryN(i))...)
		}
		return out
	}
	return nil
}

// UnionAll unions geometries pairwise, level by level, which keeps the
// operands balanced for large inputs.
func UnionAll(gs []geom.Geometry) (geom.Geometry, error) {
	if len(gs) == 0 {
		return geom.Geometry{}, nil
	}

	level := append([]geom.Geometry(nil), gs...)
	for len(level) > 1 {
		next := make([]geom.Geometry, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			u, err := geom.Union(level[i], level[i+1])
			if err != nil {
				return geom.Geometry{}, fmt.Errorf("failed to union geometries: %w", err)
			}
			next = append(next, u)
		}
		level = next
	}
	return level[0], nil
}

// SharesBoundary reports whether a and b touch along a line rather than at
// isolated points.
func SharesBoundary(a, b geom.Geometry) (bool, error) {
	if !geom.Intersects(a, b) {
		return false, nil
	}
	shared, err := geom.Intersection(a.Boundary(), b.Boundary())
	if err != nil {
		return false, fmt.Errorf("failed to intersect boundaries: %w", err)
	}
	return shared.Length() > 0, nil
}

// Validate checks that g is a non-empty polygonal geometry that survives a
// WKB round trip with validation enabled.
func Validate(g geom.Geometry) error {
	if g.IsEmpty() {
		return ErrEmptyGeometry
	}
	switch g.Type() {
	case geom.TypePolygon, geom.TypeMultiPolygon:
	default:
		return fmt.Errorf("expected polygonal geometry, got %s", g.Type())
	}
	if g.Area() <= 0 {
		return fmt.Errorf("zero area: %w", ErrEmptyGeometry)
	}
	if _, err := geom.UnmarshalWKB(g.AsBinary()); err != nil {
		return fmt.Errorf("invalid geometry: %w", err)
	}
	return nil
}

// Polygonal keeps only the polygonal parts of g, dropping lines and points
// that intersection and union can leave behind.
func Polygonal(g geom.Geometry) (geom.Geometry, error) {
	polys := Polygons(g)
	switch len(polys) {
	case 0:
		return geom.Geometry{}, nil
	case 1:
		return polys[0], nil
	}
	return UnionAll(polys)
}
