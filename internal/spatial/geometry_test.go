package spatial

import (
	"errors"
	"math"
	"testing"

	"github.com/peterstace/simplefeatures/geom"
)

func mustWKT(t *testing.T, wkt string) geom.Geometry {
	t.Helper()
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		t.Fatalf("UnmarshalWKT(%q): %v", wkt, err)
	}
	return g
}

func TestBoundsOf(t *testing.T) {
	g := mustWKT(t, "LINESTRING(1 5,4 2,3 9)")
	b, ok := BoundsOf(g)
	if !ok {
		t.Fatal("expected bounds")
	}
	if b != (Bounds{MinX: 1, MinY: 2, MaxX: 4, MaxY: 9}) {
		t.Errorf("BoundsOf = %+v", b)
	}
	if _, ok := BoundsOf(geom.Geometry{}); ok {
		t.Error("empty geometry should have no bounds")
	}
	if !b.Expand(1).Contains(XY{X: 0, Y: 1}) {
		t.Error("expanded box should contain corner")
	}
}

func TestLocate(t *testing.T) {
	line := []XY{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}

	loc, err := Locate(line, XY{X: 12, Y: 4})
	if err != nil {
		t.Fatal(err)
	}
	if loc.Point != (XY{X: 10, Y: 4}) {
		t.Errorf("Point = %v", loc.Point)
	}
	if math.Abs(loc.Distance-2) > 1e-9 || math.Abs(loc.Along-14) > 1e-9 {
		t.Errorf("Distance = %v, Along = %v", loc.Distance, loc.Along)
	}
	if math.Abs(loc.Fraction-0.7) > 1e-9 {
		t.Errorf("Fraction = %v", loc.Fraction)
	}

	if _, err := Locate(nil, XY{}); !errors.Is(err, ErrEmptyGeometry) {
		t.Errorf("expected ErrEmptyGeometry, got %v", err)
	}
}

func TestSubLineAndDirection(t *testing.T) {
	line := []XY{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}

	sub := SubLine(line, 5)
	want := []XY{{X: 5, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}
	if len(sub) != len(want) {
		t.Fatalf("SubLine = %v", sub)
	}
	for i := range want {
		if sub[i] != want[i] {
			t.Errorf("SubLine[%d] = %v, want %v", i, sub[i], want[i])
		}
	}
	if got := PolylineLength(sub); math.Abs(got-15) > 1e-9 {
		t.Errorf("PolylineLength = %v", got)
	}

	dir, err := DirectionAt(line, 12)
	if err != nil {
		t.Fatal(err)
	}
	if dir != (XY{X: 0, Y: 1}) {
		t.Errorf("DirectionAt = %v", dir)
	}
}

func TestMergeParts(t *testing.T) {
	parts := [][]XY{
		{{X: 0, Y: 0}, {X: 1, Y: 0}},
		{{X: 1, Y: 0}, {X: 2, Y: 0}},
	}
	if got := MergeParts(parts); len(got) != 3 {
		t.Errorf("MergeParts = %v", got)
	}
}

func TestHalfPlane(t *testing.T) {
	hp, err := HalfPlane(XY{X: 0, Y: 0}, XY{X: 0, Y: 1}, 100)
	if err != nil {
		t.Fatal(err)
	}
	above := mustWKT(t, "POINT(0 50)")
	below := mustWKT(t, "POINT(0 -50)")
	if !geom.Intersects(hp, above) || geom.Intersects(hp, below) {
		t.Error("half plane should only cover the side the direction points to")
	}
}

func TestPolygonWKTClosesRings(t *testing.T) {
	wkt := PolygonWKT([][]XY{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}})
	if wkt != "POLYGON((0 0,1 0,1 1,0 0))" {
		t.Errorf("PolygonWKT = %s", wkt)
	}
	g := mustWKT(t, MultiPolygonWKT([][][]XY{
		{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}},
		{{{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 6, Y: 6}}},
	}))
	if len(Polygons(g)) != 2 {
		t.Errorf("expected two polygons in %s", g.AsText())
	}
}

func TestUnionAll(t *testing.T) {
	var squares []geom.Geometry
	for i := 0; i < 5; i++ {
		x := float64(i)
		squares = append(squares, mustWKT(t, RectWKT(Bounds{MinX: x, MinY: 0, MaxX: x + 1, MaxY: 1})))
	}

	u, err := UnionAll(squares)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(u.Area()-5) > 1e-9 {
		t.Errorf("union area = %v, want 5", u.Area())
	}
	if len(Polygons(u)) != 1 {
		t.Errorf("adjacent squares should dissolve into one polygon: %s", u.AsText())
	}

	empty, err := UnionAll(nil)
	if err != nil || !empty.IsEmpty() {
		t.Errorf("UnionAll(nil) = %v, %v", empty, err)
	}
}

func TestSharesBoundary(t *testing.T) {
	a := mustWKT(t, "POLYGON((0 0,1 0,1 1,0 1,0 0))")
	edge := mustWKT(t, "POLYGON((1 0,2 0,2 1,1 1,1 0))")
	corner := mustWKT(t, "POLYGON((1 1,2 1,2 2,1 2,1 1))")
	apart := mustWKT(t, "POLYGON((3 3,4 3,4 4,3 4,3 3))")

	tests := []struct {
		name string
		b    geom.Geometry
		want bool
	}{
		{"shared edge", edge, true},
		{"corner only", corner, false},
		{"disjoint", apart, false},
	}
	for _, tt := range tests {
		got, err := SharesBoundary(a, tt.b)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: SharesBoundary = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(mustWKT(t, "POLYGON((0 0,1 0,1 1,0 0))")); err != nil {
		t.Errorf("valid polygon rejected: %v", err)
	}
	if err := Validate(geom.Geometry{}); !errors.Is(err, ErrEmptyGeometry) {
		t.Errorf("empty geometry: %v", err)
	}
	if err := Validate(mustWKT(t, "LINESTRING(0 0,1 1)")); err == nil {
		t.Error("line should not validate as a watershed")
	}
}
