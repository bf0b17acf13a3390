package watershed

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
)

// Refiner produces the refined local watershed of a point
type Refiner interface {
	Refine(ctx context.Context, a *Arena) (geom.Geometry, error)
}

// Options configures a Pipeline
type Options struct {
	Workers       int
	SearchRadius  float64
	Closest       bool // store only the best match; otherwise every candidate is kept as an event
	Thresholds    ThresholdSet
	FallbackToDEM bool          // retry a failed CUT with DEM
	PointTimeout  time.Duration // abandon a point after this long; 0 means no limit
}

// Deps are the collaborators of a Pipeline. Runs, Cut, DEM and Extender may
// be nil.
type Deps struct {
	Streams    StreamStore
	Watersheds WatershedStore
	Events     EventStore
	Fragments  FragmentStore
	Runs       RunStore
	Cut        Refiner
	DEM        Refiner
	Extender   *CrossBorderExtender
}

// Pipeline delineates the watershed of each input point: reference,
// assemble, select, refine, extend. Points are independent and are run on
// a bounded worker pool.
type Pipeline struct {
	referencer *Referencer
	assembler  *Assembler
	deps       Deps
	opts       Options
	log        logrus.FieldLogger
}

// NewPipeline creates a pipeline
func NewPipeline(deps Deps, opts Options, log logrus.FieldLogger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.SearchRadius <= 0 {
		opts.SearchRadius = DefaultSearchRadius
	}
	return &Pipeline{
		referencer: NewReferencer(deps.Streams, log),
		assembler:  NewAssembler(deps.Watersheds, log),
		deps:       deps,
		opts:       opts,
		log:        log,
	}
}

// Run processes pts under runID and returns the end-of-run report. Point
// failures are recorded in the report; only a cancelled context or a run
// store failure is returned as an error.
func (p *Pipeline) Run(ctx context.Context, runID string, pts []models.InputPoint) (*Report, error) {
	log := p.log.WithField("run_id", runID)
	if p.deps.Runs != nil {
		if err := p.deps.Runs.MarkAsRunning(ctx, runID, len(pts)); err != nil {
			return nil, err
		}
	}
	log.WithFields(logrus.Fields{"points": len(pts), "workers": p.opts.Workers}).Info("Run started")

	var (
		mu        sync.Mutex
		outcomes  = make([]*models.PointOutcome, 0, len(pts))
		failed    int
		unmatched int
	)
	record := func(o *models.PointOutcome) error {
		o.RunID = runID
		mu.Lock()
		defer mu.Unlock()

		outcomes = append(outcomes, o)
		switch o.Status {
		case models.OutcomeFailed:
			failed++
		case models.OutcomeUnmatched:
			unmatched++
		}
		if p.deps.Runs == nil {
			return nil
		}
		if err := p.deps.Runs.SaveOutcome(ctx, o); err != nil {
			return err
		}
		processed := len(outcomes)
		return p.deps.Runs.UpdateProgress(ctx, runID, processed, failed, unmatched, float64(processed)/float64(len(pts))*100)
	}

	err := p.pool(ctx, len(pts), func(i int) error {
		return record(p.ProcessPoint(ctx, pts[i]))
	})

	report := NewReport(runID, outcomes)
	report.Log(log)

	if p.deps.Runs != nil {
		// the run record is written even when ctx is done
		bg := context.WithoutCancel(ctx)
		if err != nil {
			if ferr := p.deps.Runs.MarkAsFailed(bg, runID, err.Error()); ferr != nil {
				log.WithError(ferr).Error("Failed to mark run as failed")
			}
		} else if cerr := p.deps.Runs.MarkAsCompleted(bg, runID); cerr != nil {
			return report, cerr
		}
	}
	return report, err
}

// pool runs fn over [0, total) on the worker pool. It stops handing out
// work when ctx is done or fn fails.
func (p *Pipeline) pool(ctx context.Context, total int, fn func(idx int) error) error {
	if total == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	indexCh := make(chan int)
	errCh := make(chan error, total)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range indexCh {
			if err := fn(idx); err != nil {
				errCh <- err
				cancel()
				return
			}
		}
	}

	workers := p.opts.Workers
	if workers > total {
		workers = total
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}

Loop:
	for i := 0; i < total; i++ {
		select {
		case indexCh <- i:
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	return ctx.Err()
}

// ProcessPoint runs one point through every stage. It never returns nil. A
// point that runs past Options.PointTimeout is abandoned and recorded as
// failed.
func (p *Pipeline) ProcessPoint(ctx context.Context, pt models.InputPoint) *models.PointOutcome {
	a := NewArena(pt)
	defer a.Release()

	log := p.log.WithFields(logrus.Fields{"point_id": pt.ID, "arena": a.ID.String()})
	out := &models.PointOutcome{PointID: pt.ID, Status: models.OutcomeSuccess}

	pctx := ctx
	if p.opts.PointTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, p.opts.PointTimeout)
		defer cancel()
	}

	err := p.process(pctx, a, out, log)
	if err != nil && ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded) {
		err = NewPointError(KindTimeout, pt.ID, fmt.Errorf("abandoned after %s: %w", p.opts.PointTimeout, err))
	}
	if err != nil {
		out.ErrorKind = string(KindOf(err))
		out.Message = err.Error()
		if out.Status == models.OutcomeSuccess {
			out.Status = models.OutcomeFailed
		}
		log.WithError(err).WithField("status", out.Status).Warn("Point not fully delineated")
	}
	out.Method = string(a.Method)
	out.Sources, out.Area = p.sources(ctx, pt.ID)
	return out
}

func (p *Pipeline) process(ctx context.Context, a *Arena, out *models.PointOutcome, log logrus.FieldLogger) error {
	pt := a.Point
	x := p.deps.Extender

	if x != nil && x.Outside(pt) {
		return p.processExternal(ctx, pt, out)
	}

	events, err := p.referencer.Reference(ctx, pt, p.opts.SearchRadius)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		out.Status = models.OutcomeUnmatched
		return NewPointError(KindReferencingMiss, pt.ID, fmt.Errorf("no stream within %vm", p.opts.SearchRadius))
	}
	e := events[0]
	if err := checkCodes(e); err != nil {
		return NewPointError(KindDataIntegrity, pt.ID, err)
	}
	a.Event = e
	if p.opts.Closest {
		events = events[:1]
	}
	if err := p.deps.Events.ReplacePoint(ctx, pt.ID, events); err != nil {
		return err
	}

	prelim, err := p.assembler.AssemblePrelim(ctx, e)
	if err != nil {
		return err
	}

	reach, err := p.deps.Streams.LocalReach(ctx, e.BlueLineKey, e.WSCode, e.LocalCode)
	if err != nil {
		return err
	}
	toTop, toBottom, err := LocalReachLengths(reach, e.DownstreamRouteMeasure)
	if err != nil {
		return NewPointError(KindDataIntegrity, pt.ID, err)
	}
	if err := a.SetReach(reach); err != nil {
		return NewPointError(KindInvalidGeometry, pt.ID, err)
	}
	a.Method = SelectRefineMethod(e.OnWaterbody, toTop, toBottom, p.opts.Thresholds)
	log.WithFields(logrus.Fields{
		"prelim":         len(prelim),
		"length_top":     toTop,
		"length_bottom":  toBottom,
		"on_waterbody":   e.OnWaterbody,
		"refine_method":  a.Method,
		"distance":       e.DistanceToStream,
		"blue_line_key":  e.BlueLineKey,
		"route_measure":  e.DownstreamRouteMeasure,
		"watershed_code": e.WSCode.String(),
	}).Debug("Assembled preliminary watershed")

	// prelim and unrefined land together or not at all
	frags := PrelimFragments(pt.ID, prelim)
	if a.Method != MethodDrop {
		if err := p.loadBottom(ctx, a); err != nil {
			return err
		}
		frags = append(frags, unrefinedFragments(a)...)
	}
	if err := p.deps.Fragments.ReplacePoint(ctx, pt.ID, frags); err != nil {
		return err
	}

	var refineErr error
	if a.Method == MethodCut || a.Method == MethodDEM {
		source, g, err := p.refine(ctx, a, log)
		switch {
		case err == nil:
			f := &models.Fragment{Source: source, Geometry: g}
			if err := p.deps.Fragments.ReplaceSource(ctx, pt.ID, models.SourceUnrefined, f); err != nil {
				return err
			}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			// the unrefined polygon stays in place
			out.Status = models.OutcomeFallback
			refineErr = err
		}
	}

	if x != nil {
		frags, err := x.Extend(ctx, e)
		if err != nil {
			return err
		}
		if len(frags) > 0 {
			if err := p.deps.Fragments.Add(ctx, frags...); err != nil {
				return err
			}
		}
	}
	return refineErr
}

// loadBottom fetches the watershed polygons of the referenced reach
func (p *Pipeline) loadBottom(ctx context.Context, a *Arena) error {
	bottom, err := p.assembler.BottomPolygons(ctx, a.Event)
	if err != nil {
		return err
	}
	if len(bottom) == 0 {
		return NewPointError(KindDataIntegrity, a.Point.ID,
			fmt.Errorf("no watershed polygon for %s/%s", a.Event.WSCode, a.Event.LocalCode))
	}
	a.Bottom = bottom
	return nil
}

func unrefinedFragments(a *Arena) []*models.Fragment {
	frags := make([]*models.Fragment, len(a.Bottom))
	for i, w := range a.Bottom {
		frags[i] = &models.Fragment{
			PointID:            a.Point.ID,
			Source:             models.SourceUnrefined,
			WatershedFeatureID: w.WatershedFeatureID,
			Geometry:           w.Geometry,
		}
	}
	return frags
}

func (p *Pipeline) refine(ctx context.Context, a *Arena, log logrus.FieldLogger) (string, geom.Geometry, error) {
	if a.Method == MethodCut {
		if p.deps.Cut != nil {
			g, err := p.deps.Cut.Refine(ctx, a)
			if err == nil {
				a.Refined = g
				return models.SourceCutRefined, g, nil
			}
			if !errors.Is(err, ErrInvalidGeometry) || !p.opts.FallbackToDEM {
				return "", geom.Geometry{}, p.pointError(a, err)
			}
			log.WithError(err).Info("Cut failed, falling back to DEM")
		}
		a.Method = MethodDEM
	}

	if p.deps.DEM == nil {
		return "", geom.Geometry{}, NewPointError(KindInvalidGeometry, a.Point.ID, errors.New("no DEM source configured"))
	}
	g, err := p.deps.DEM.Refine(ctx, a)
	if err != nil {
		return "", geom.Geometry{}, p.pointError(a, err)
	}
	a.Refined = g
	return models.SourceDEMRefined, g, nil
}

func (p *Pipeline) pointError(a *Arena, err error) error {
	if kind := KindOf(err); kind != "" {
		return NewPointError(kind, a.Point.ID, err)
	}
	return err
}

func (p *Pipeline) processExternal(ctx context.Context, pt models.InputPoint, out *models.PointOutcome) error {
	f, err := p.deps.Extender.ExtendExternal(ctx, pt)
	if err != nil {
		return err
	}
	if f == nil {
		out.Status = models.OutcomeUnmatched
		return NewPointError(KindReferencingMiss, pt.ID, errors.New("outside jurisdiction and no external match"))
	}
	return p.deps.Fragments.ReplacePoint(ctx, pt.ID, []*models.Fragment{f})
}

// sources lists the distinct fragment sources stored for a point and their
// total area
func (p *Pipeline) sources(ctx context.Context, pointID string) ([]string, float64) {
	frags, err := p.deps.Fragments.ListByPoint(context.WithoutCancel(ctx), pointID)
	if err != nil {
		p.log.WithError(err).WithField("point_id", pointID).Warn("Failed to list fragments")
		return nil, 0
	}
	seen := make(map[string]bool)
	var out []string
	var area float64
	for _, f := range frags {
		area += f.Area
		if !seen[f.Source] {
			seen[f.Source] = true
			out = append(out, f.Source)
		}
	}
	return out, area
}
