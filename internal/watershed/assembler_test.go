package watershed

import (
	"context"
	"reflect"
	"testing"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
)

func TestAssemblePrelim(t *testing.T) {
	e := newEnv(t)
	asm := NewAssembler(e.watersheds, quietLogger())
	ctx := context.Background()

	ev := e.reference(t, "p1", 10, 3400)
	polys, err := asm.AssemblePrelim(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}

	// 15 is the far arm of lake 700, reached only through waterbody completion
	want := []int64{4, 5, 6, 13, 14, 15}
	if got := featureIDs(polys); !reflect.DeepEqual(got, want) {
		t.Errorf("prelim = %v, want %v", got, want)
	}
	for _, w := range polys {
		if isBottom(ev, w) {
			t.Errorf("bottom polygon %d included", w.WatershedFeatureID)
		}
	}

	again, err := asm.AssemblePrelim(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(featureIDs(again), featureIDs(polys)) {
		t.Error("assembly is not repeatable")
	}
}

func TestAssemblePrelimAtMouth(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.reference(t, "mouth", 5, 100)

	all, err := e.watersheds.Descendants(ctx, ev.WSCode)
	if err != nil {
		t.Fatal(err)
	}
	bottom, err := e.watersheds.ByCodes(ctx, ev.WSCode, ev.LocalCode)
	if err != nil {
		t.Fatal(err)
	}

	polys, err := NewAssembler(e.watersheds, quietLogger()).AssemblePrelim(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if len(polys) != len(all)-len(bottom) {
		t.Errorf("prelim at mouth = %d polygons, want %d", len(polys), len(all)-len(bottom))
	}
}

func TestPrelimFragments(t *testing.T) {
	polys := []*models.WatershedPolygon{{WatershedFeatureID: 4}, {WatershedFeatureID: 13}}
	frags := PrelimFragments("p1", polys)
	if len(frags) != 2 {
		t.Fatalf("fragments = %d, want 2", len(frags))
	}
	for i, f := range frags {
		if f.PointID != "p1" || f.Source != models.SourcePrelim || f.WatershedFeatureID != polys[i].WatershedFeatureID {
			t.Errorf("fragment %d = %+v", i, f)
		}
	}
}
