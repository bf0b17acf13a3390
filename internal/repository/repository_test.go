package repository

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/database"
	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

type stores struct {
	db         *sql.DB
	streams    *StreamRepository
	watersheds *WatershedRepository
	events     *EventRepository
	fragments  *FragmentRepository
	runs       *RunRepository
	basins     *BasinRepository
}

func setup(t *testing.T) *stores {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "fwa.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	if err := database.NewMigrationManager(db, log).RunMigrations(ctx); err != nil {
		t.Fatal(err)
	}

	s := &stores{
		db:         db,
		streams:    NewStreamRepository(db),
		watersheds: NewWatershedRepository(db),
		events:     NewEventRepository(db),
		fragments:  NewFragmentRepository(db),
		runs:       NewRunRepository(db),
		basins:     NewBasinRepository(db),
	}

	f, err := os.Open(filepath.Join("testdata", "network.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	fx, err := ReadFixture(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.Load(ctx, FixtureStores{Streams: s.streams, Watersheds: s.watersheds, Basins: s.basins}); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLocalCodeAt(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	got, err := s.streams.LocalCodeAt(ctx, 354155107, 3400)
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "920-076175-303123" {
		t.Errorf("LocalCodeAt(354155107, 3400) = %s, want 920-076175-303123", got)
	}

	// exactly on a segment break resolves to the upstream segment
	got, err = s.streams.LocalCodeAt(ctx, 354155107, 3000)
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "920-076175-303123" {
		t.Errorf("LocalCodeAt at break = %s", got)
	}

	if _, err := s.streams.LocalCodeAt(ctx, 1, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown blue line: %v", err)
	}
}

func TestNearest(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	cands, err := s.streams.Nearest(ctx, spatial.XY{X: 10, Y: 3400}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	c := cands[0]
	if c.Segment.LinearFeatureID != 3 || math.Abs(c.Distance-10) > 1e-9 || math.Abs(c.Measure-3400) > 1e-6 {
		t.Errorf("candidate = seg %d dist %v measure %v", c.Segment.LinearFeatureID, c.Distance, c.Measure)
	}

	// at a confluence both streams are candidates, closest first
	cands, err = s.streams.Nearest(ctx, spatial.XY{X: 20, Y: 1510}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) < 2 || cands[0].Segment.LinearFeatureID != 11 {
		t.Errorf("confluence candidates = %+v", cands)
	}

	cands, err = s.streams.Nearest(ctx, spatial.XY{X: 10000, Y: 10000}, 100)
	if err != nil || len(cands) != 0 {
		t.Errorf("far point: %v, %v", cands, err)
	}
}

func TestLocalReachAndWaterbody(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	reach, err := s.streams.LocalReach(ctx, 354155107, wscode.MustParse("920-076175"), wscode.MustParse("920-076175-303123"))
	if err != nil {
		t.Fatal(err)
	}
	if len(reach) != 1 || reach[0].LinearFeatureID != 3 {
		t.Errorf("local reach = %v", reach)
	}

	wb, err := s.streams.Waterbody(ctx, 800)
	if err != nil {
		t.Fatal(err)
	}
	if !wb.IsChannel() || wb.IsStanding() {
		t.Errorf("waterbody 800 = %+v", wb)
	}
	if wb, err := s.streams.Waterbody(ctx, 0); wb != nil || err != nil {
		t.Errorf("zero key: %v, %v", wb, err)
	}

	up, err := s.streams.Upstream(ctx, wscode.MustParse("920-076175-450000"))
	if err != nil {
		t.Fatal(err)
	}
	if len(up) != 2 {
		t.Errorf("streams under 920-076175-450000 = %d, want 2", len(up))
	}
}

func TestWatershedQueries(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	desc, err := s.watersheds.Descendants(ctx, wscode.MustParse("920-076175"))
	if err != nil {
		t.Fatal(err)
	}
	if len(desc) != 11 {
		t.Errorf("descendants = %d, want 11", len(desc))
	}
	for _, w := range desc {
		if w.WatershedFeatureID == 20 {
			t.Error("sibling watershed 920-076176 matched as descendant")
		}
	}

	bottom, err := s.watersheds.ByCodes(ctx, wscode.MustParse("920-076175"), wscode.MustParse("920-076175-450000"))
	if err != nil {
		t.Fatal(err)
	}
	if len(bottom) != 3 {
		t.Errorf("bottom polygons = %d, want 3", len(bottom))
	}

	lake, err := s.watersheds.ByWaterbodyKeys(ctx, []int64{700})
	if err != nil {
		t.Fatal(err)
	}
	if len(lake) != 2 {
		t.Errorf("lake polygons = %d, want 2", len(lake))
	}

	near, err := s.watersheds.Intersecting(ctx, spatial.Bounds{MinX: 5500, MinY: 500, MaxX: 5600, MaxY: 600})
	if err != nil {
		t.Fatal(err)
	}
	if len(near) != 1 || near[0].WatershedFeatureID != 20 {
		t.Errorf("intersecting = %v", near)
	}
}

func TestEventRoundTrip(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	e := &models.Event{
		PointID:                "p1",
		LinearFeatureID:        3,
		BlueLineKey:            354155107,
		DownstreamRouteMeasure: 3400,
		StreamMeasure:          3000,
		WSCode:                 wscode.MustParse("920-076175"),
		LocalCode:              wscode.MustParse("920-076175-303123"),
		DistanceToStream:       10,
		OnWaterbody:            true,
		WaterbodyKey:           800,
	}
	if err := s.events.Save(ctx, e); err != nil {
		t.Fatal(err)
	}
	got, err := s.events.Get(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if *got != *e {
		t.Errorf("event = %+v, want %+v", got, e)
	}
	if _, err := s.events.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing event: %v", err)
	}
}

func TestEventRepositoryRanks(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	mk := func(lfid int64, dist float64) *models.Event {
		return &models.Event{
			LinearFeatureID:  lfid,
			BlueLineKey:      354155107,
			WSCode:           wscode.MustParse("920-076175"),
			LocalCode:        wscode.MustParse("920-076175"),
			DistanceToStream: dist,
		}
	}
	if err := s.events.ReplacePoint(ctx, "p1", []*models.Event{mk(11, 5), mk(2, 20)}); err != nil {
		t.Fatal(err)
	}
	got, err := s.events.List(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].LinearFeatureID != 11 || got[1].LinearFeatureID != 2 || got[1].Rank != 1 {
		t.Fatalf("events = %+v", got)
	}
	primary, err := s.events.Get(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if primary.LinearFeatureID != 11 {
		t.Errorf("primary event = %+v", primary)
	}

	// re-referencing drops the stale candidates
	if err := s.events.ReplacePoint(ctx, "p1", []*models.Event{mk(2, 20)}); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.events.List(ctx, "p1"); len(got) != 1 || got[0].LinearFeatureID != 2 {
		t.Errorf("events after replace = %+v", got)
	}
}

func square(t *testing.T, x float64) geom.Geometry {
	t.Helper()
	g, err := geom.UnmarshalWKT(spatial.RectWKT(spatial.Bounds{MinX: x, MinY: 0, MaxX: x + 10, MaxY: 10}))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestFragmentReplace(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	prelim := []*models.Fragment{
		{Source: models.SourcePrelim, WatershedFeatureID: 1, Geometry: square(t, 0)},
		{Source: models.SourcePrelim, WatershedFeatureID: 2, Geometry: square(t, 10)},
	}
	if err := s.fragments.ReplacePoint(ctx, "p1", prelim); err != nil {
		t.Fatal(err)
	}
	// running the same replace again leaves the same set
	if err := s.fragments.ReplacePoint(ctx, "p1", prelim); err != nil {
		t.Fatal(err)
	}
	if err := s.fragments.Add(ctx, &models.Fragment{PointID: "p1", Source: models.SourceUnrefined, Geometry: square(t, 20)}); err != nil {
		t.Fatal(err)
	}

	frags, err := s.fragments.ListByPoint(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 3 {
		t.Fatalf("fragments = %d, want 3", len(frags))
	}

	refined := &models.Fragment{Source: models.SourceDEMRefined, Geometry: square(t, 20)}
	if err := s.fragments.ReplaceSource(ctx, "p1", models.SourceUnrefined, refined); err != nil {
		t.Fatal(err)
	}
	frags, _ = s.fragments.ListByPoint(ctx, "p1")
	var sources []string
	for _, f := range frags {
		sources = append(sources, f.Source)
	}
	if len(frags) != 3 || sources[2] != models.SourceDEMRefined {
		t.Errorf("sources after replace = %v", sources)
	}

	// nothing to replace: the transaction rolls back and nothing is inserted
	err = s.fragments.ReplaceSource(ctx, "p1", models.SourceUnrefined, &models.Fragment{Source: models.SourceCutRefined, Geometry: square(t, 30)})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	frags, _ = s.fragments.ListByPoint(ctx, "p1")
	if len(frags) != 3 {
		t.Errorf("failed replace changed fragment count to %d", len(frags))
	}

	dissolved, err := s.fragments.Dissolved(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(dissolved.Area()-300) > 1e-6 {
		t.Errorf("dissolved area = %v, want 300", dissolved.Area())
	}
}

func TestRunLifecycle(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	run := &models.Run{ID: "run-1", TotalPoints: 2}
	if err := s.runs.Create(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := s.runs.MarkAsRunning(ctx, "run-1", 2); err != nil {
		t.Fatal(err)
	}
	if err := s.runs.SaveOutcome(ctx, &models.PointOutcome{
		RunID: "run-1", PointID: "a", Status: models.OutcomeSuccess, Method: "DEM",
		Sources: []string{models.SourcePrelim, models.SourceDEMRefined},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.runs.SaveOutcome(ctx, &models.PointOutcome{
		RunID: "run-1", PointID: "b", Status: models.OutcomeUnmatched, ErrorKind: "REFERENCING_MISS",
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.runs.UpdateProgress(ctx, "run-1", 2, 0, 1, 100); err != nil {
		t.Fatal(err)
	}
	if err := s.runs.MarkAsCompleted(ctx, "run-1"); err != nil {
		t.Fatal(err)
	}

	got, err := s.runs.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RunStatusCompleted || got.UnmatchedPoints != 1 || got.ProcessedPoints != 2 {
		t.Errorf("run = %+v", got)
	}

	outcomes, err := s.runs.Outcomes(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 2 || len(outcomes[0].Sources) != 2 || outcomes[1].ErrorKind != "REFERENCING_MISS" {
		t.Errorf("outcomes = %+v", outcomes)
	}

	if _, err := s.runs.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing run: %v", err)
	}
}

func TestBasinTributaries(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	up, err := s.basins.Tributaries(ctx, "wbd", []string{"171100050101"})
	if err != nil {
		t.Fatal(err)
	}
	if len(up) != 2 || up[0].UnitID != "171100050102" || up[1].UnitID != "171100050103" {
		t.Errorf("tributaries = %v", up)
	}

	u, err := s.basins.Unit(ctx, "wbd", "171100050104")
	if err != nil {
		t.Fatal(err)
	}
	if u.OutletID != "171100050102" {
		t.Errorf("outlet = %s", u.OutletID)
	}
	if _, err := s.basins.Unit(ctx, "hydrobasins", "171100050104"); !errors.Is(err, ErrNotFound) {
		t.Errorf("wrong hierarchy: %v", err)
	}
}
