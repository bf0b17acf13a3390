package watershed

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/database"
	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/raster"
	"github.com/jengzang/fwa-watersheds-go/internal/repository"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/waters"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type env struct {
	streams    *repository.StreamRepository
	watersheds *repository.WatershedRepository
	events     *repository.EventRepository
	fragments  *repository.FragmentRepository
	runs       *repository.RunRepository
	basins     *repository.BasinRepository
}

// newEnv opens a sqlite store loaded with the shared network fixture
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "fwa.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.NewMigrationManager(db, quietLogger()).RunMigrations(ctx); err != nil {
		t.Fatal(err)
	}

	e := &env{
		streams:    repository.NewStreamRepository(db),
		watersheds: repository.NewWatershedRepository(db),
		events:     repository.NewEventRepository(db),
		fragments:  repository.NewFragmentRepository(db),
		runs:       repository.NewRunRepository(db),
		basins:     repository.NewBasinRepository(db),
	}

	f, err := os.Open(filepath.Join("..", "repository", "testdata", "network.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	fx, err := repository.ReadFixture(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.Load(ctx, repository.FixtureStores{Streams: e.streams, Watersheds: e.watersheds, Basins: e.basins}); err != nil {
		t.Fatal(err)
	}
	return e
}

func (e *env) deps() Deps {
	return Deps{
		Streams:    e.streams,
		Watersheds: e.watersheds,
		Events:     e.events,
		Fragments:  e.fragments,
		Runs:       e.runs,
	}
}

// reference snaps a point with the fixture store and returns the best event
func (e *env) reference(t *testing.T, id string, x, y float64) *models.Event {
	t.Helper()
	events, err := NewReferencer(e.streams, quietLogger()).Reference(context.Background(), models.InputPoint{ID: id, X: x, Y: y}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Fatalf("point %s (%v, %v) did not reference", id, x, y)
	}
	return events[0]
}

// surfaceSource is a dem.Source computing elevation from a function of the
// cell centre
type surfaceSource struct {
	cellSize float64
	z        func(p spatial.XY) float64
	calls    int
}

func (s *surfaceSource) Extract(_ context.Context, b spatial.Bounds) (*raster.Grid, error) {
	s.calls++
	g, err := raster.NewGrid(b, s.cellSize)
	if err != nil {
		return nil, err
	}
	for i := range g.Values {
		g.Values[i] = s.z(g.Center(i))
	}
	return g, nil
}

// valleySurface drains to the line x=0 and falls to the south
func valleySurface(p spatial.XY) float64 {
	ax := p.X
	if ax < 0 {
		ax = -ax
	}
	return 0.1*ax + 0.01*p.Y
}

// memGraph is an in-memory BasinGraph keyed by unit id
type memGraph struct {
	units map[string]*models.BasinUnit
	calls int
}

func newMemGraph(edges map[string]string) *memGraph {
	g := &memGraph{units: make(map[string]*models.BasinUnit)}
	poly, _ := geom.UnmarshalWKT("POLYGON((0 0,1 0,1 1,0 1,0 0))")
	for id, outlet := range edges {
		g.units[id] = &models.BasinUnit{Hierarchy: HierarchyHydroBASINS, UnitID: id, OutletID: outlet, Geometry: poly}
	}
	return g
}

func (g *memGraph) Unit(_ context.Context, _ string, id string) (*models.BasinUnit, error) {
	u, ok := g.units[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (g *memGraph) Tributaries(_ context.Context, _ string, ids []string) ([]*models.BasinUnit, error) {
	g.calls++
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*models.BasinUnit
	for _, u := range g.units {
		if want[u.OutletID] {
			out = append(out, u)
		}
	}
	return out, nil
}

// fakeExternal answers the WATERS calls from fixed values
type fakeExternal struct {
	match    *waters.Match
	shape    geom.Geometry
	indexErr error
	shapeErr error
}

func (f *fakeExternal) IndexPoint(context.Context, spatial.LonLat) (*waters.Match, error) {
	return f.match, f.indexErr
}

func (f *fakeExternal) DelineateUpstream(context.Context, *waters.Match) (geom.Geometry, error) {
	return f.shape, f.shapeErr
}

// refinerFunc adapts a function to Refiner
type refinerFunc func(ctx context.Context, a *Arena) (geom.Geometry, error)

func (f refinerFunc) Refine(ctx context.Context, a *Arena) (geom.Geometry, error) {
	return f(ctx, a)
}

func featureIDs(polys []*models.WatershedPolygon) []int64 {
	ids := make([]int64, len(polys))
	for i, w := range polys {
		ids[i] = w.WatershedFeatureID
	}
	return ids
}

func sourcesOf(frags []*models.Fragment) map[string]int {
	out := make(map[string]int)
	for _, f := range frags {
		out[f.Source]++
	}
	return out
}
