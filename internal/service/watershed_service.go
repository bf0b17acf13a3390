package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/repository"
	"github.com/jengzang/fwa-watersheds-go/internal/watershed"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

var (
	// ErrInvalidInput is wrapped by validation failures of caller input
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is wrapped when a request clashes with a run in progress
	ErrConflict = errors.New("conflict")
)

// RunDetail is a run with its per-point report
type RunDetail struct {
	*models.Run
	Outcomes []*models.PointOutcome `json:"outcomes"`
}

// WatershedService handles run submission and watershed retrieval.
//
// Outputs are keyed by point id alone, so a point id names one location
// across every run. A run is refused while another active run holds any of
// its point ids.
type WatershedService struct {
	streams   *repository.StreamRepository
	runs      *repository.RunRepository
	fragments *repository.FragmentRepository
	events    *repository.EventRepository
	pipeline  *watershed.Pipeline
	log       logrus.FieldLogger

	wg sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // by run id
	claimed map[string]string             // point id to run id
}

// NewWatershedService creates a new watershed service
func NewWatershedService(streams *repository.StreamRepository, runs *repository.RunRepository,
	fragments *repository.FragmentRepository, events *repository.EventRepository,
	pipeline *watershed.Pipeline, log logrus.FieldLogger) *WatershedService {
	return &WatershedService{
		streams:   streams,
		runs:      runs,
		fragments: fragments,
		events:    events,
		pipeline:  pipeline,
		log:       log,
		cancels:   make(map[string]context.CancelFunc),
		claimed:   make(map[string]string),
	}
}

func validatePoints(pts []models.InputPoint) error {
	if len(pts) == 0 {
		return fmt.Errorf("%w: no points", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(pts))
	for i, p := range pts {
		if p.ID == "" {
			return fmt.Errorf("%w: point %d has no id", ErrInvalidInput, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate point id %s", ErrInvalidInput, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func (s *WatershedService) createRun(ctx context.Context, id string, pts []models.InputPoint) (*models.Run, error) {
	run := &models.Run{ID: id, TotalPoints: len(pts)}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// start claims the points of a new run and registers its cancel func
func (s *WatershedService) start(id string, pts []models.InputPoint, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range pts {
		if other, ok := s.claimed[p.ID]; ok {
			return fmt.Errorf("%w: point %s is being processed by run %s", ErrConflict, p.ID, other)
		}
	}
	for _, p := range pts {
		s.claimed[p.ID] = id
	}
	s.cancels[id] = cancel
	return nil
}

func (s *WatershedService) finish(id string, pts []models.InputPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	for _, p := range pts {
		if s.claimed[p.ID] == id {
			delete(s.claimed, p.ID)
		}
	}
}

// begin validates pts, claims them and records the run. The returned context
// is cancelled by CancelRun.
func (s *WatershedService) begin(ctx, parent context.Context, pts []models.InputPoint) (*models.Run, context.Context, error) {
	if err := validatePoints(pts); err != nil {
		return nil, nil, err
	}
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(parent)
	if err := s.start(id, pts, cancel); err != nil {
		cancel()
		return nil, nil, err
	}
	run, err := s.createRun(ctx, id, pts)
	if err != nil {
		s.finish(id, pts)
		return nil, nil, err
	}
	return run, runCtx, nil
}

// SubmitRun creates a run and processes it in the background
func (s *WatershedService) SubmitRun(ctx context.Context, pts []models.InputPoint) (*models.Run, error) {
	// the run outlives the request
	run, runCtx, err := s.begin(ctx, context.WithoutCancel(ctx), pts)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(run.ID, pts)
		if _, err := s.pipeline.Run(runCtx, run.ID, pts); err != nil {
			s.log.WithError(err).WithField("run_id", run.ID).Error("Run failed")
		}
	}()
	return run, nil
}

// ExecuteRun creates a run and processes it before returning the report
func (s *WatershedService) ExecuteRun(ctx context.Context, pts []models.InputPoint) (*watershed.Report, error) {
	run, runCtx, err := s.begin(ctx, ctx, pts)
	if err != nil {
		return nil, err
	}
	defer s.finish(run.ID, pts)
	return s.pipeline.Run(runCtx, run.ID, pts)
}

// CancelRun stops an active run. Points not yet finished are left as they
// were and the run is marked failed.
func (s *WatershedService) CancelRun(ctx context.Context, id string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
		s.log.WithField("run_id", id).Info("Run cancelled")
		return nil
	}

	if _, err := s.runs.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: run %s is not running", ErrConflict, id)
}

// Wait blocks until every submitted run has finished
func (s *WatershedService) Wait() {
	s.wg.Wait()
}

// GetRun retrieves a run and its outcomes
func (s *WatershedService) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	outcomes, err := s.runs.Outcomes(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: run, Outcomes: outcomes}, nil
}

// Report rebuilds the end-of-run report from stored outcomes
func (s *WatershedService) Report(ctx context.Context, id string) (*watershed.Report, error) {
	d, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return watershed.NewReport(id, d.Outcomes), nil
}

// Watershed returns a point's fragments as GeoJSON. With dissolve the
// fragments are merged into a single feature.
func (s *WatershedService) Watershed(ctx context.Context, pointID string, dissolve bool) (*FeatureCollection, error) {
	props := map[string]interface{}{"point_id": pointID}
	if e, err := s.events.Get(ctx, pointID); err == nil {
		props["blue_line_key"] = e.BlueLineKey
		props["downstream_route_measure"] = e.DownstreamRouteMeasure
		props["wscode"] = e.WSCode.String()
		props["localcode"] = e.LocalCode.String()
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if dissolve {
		g, err := s.fragments.Dissolved(ctx, pointID)
		if err != nil {
			return nil, err
		}
		props["area"] = g.Area()
		return &FeatureCollection{Type: "FeatureCollection", Features: []Feature{newFeature(g, props)}}, nil
	}

	frags, err := s.fragments.ListByPoint(ctx, pointID)
	if err != nil {
		return nil, err
	}
	if len(frags) == 0 {
		return nil, fmt.Errorf("fragments for %s: %w", pointID, repository.ErrNotFound)
	}
	fc := &FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(frags))}
	for _, f := range frags {
		p := make(map[string]interface{}, len(props)+3)
		for k, v := range props {
			p[k] = v
		}
		p["source"] = f.Source
		p["area"] = f.Area
		if f.WatershedFeatureID != 0 {
			p["watershed_feature_id"] = f.WatershedFeatureID
		}
		fc.Features = append(fc.Features, newFeature(f.Geometry, p))
	}
	return fc, nil
}

// IsUpstream evaluates the watershed code predicate on raw codes
func (s *WatershedService) IsUpstream(pointWS, pointLocal, ws, local string) (bool, error) {
	codes := make([]wscode.Code, 4)
	for i, raw := range []string{pointWS, pointLocal, ws, local} {
		c, err := wscode.Parse(raw)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		codes[i] = c
	}
	return wscode.IsUpstream(codes[0], codes[1], codes[2], codes[3]), nil
}

// LocalCode returns the local code of the stream segment containing a
// measure on a blue line
func (s *WatershedService) LocalCode(ctx context.Context, blueLineKey int64, measure float64) (string, error) {
	if measure < 0 {
		return "", fmt.Errorf("%w: negative measure %v", ErrInvalidInput, measure)
	}
	c, err := s.streams.LocalCodeAt(ctx, blueLineKey, measure)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// FeatureCollection is a GeoJSON feature collection
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON feature. geom.Geometry marshals as GeoJSON.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   geom.Geometry          `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

func newFeature(g geom.Geometry, props map[string]interface{}) Feature {
	return Feature{Type: "Feature", Geometry: g, Properties: props}
}
