package watershed

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/waters"
)

// WalkResult is the outcome of a basin walk
type WalkResult struct {
	Units []*models.BasinUnit // start unit first, then level by level
	Steps int                 // levels expanded, including the final empty one
}

// WalkUp collects start and every unit draining to it, one level per step.
// A unit seen twice means the outlet relation has a cycle, which is reported
// as a data integrity error. maxSteps of 0 means no limit.
func WalkUp(ctx context.Context, g BasinGraph, hierarchy, start string, maxSteps int) (*WalkResult, error) {
	root, err := g.Unit(ctx, hierarchy, start)
	if err != nil {
		return nil, fmt.Errorf("failed to get start unit %s/%s: %w", hierarchy, start, err)
	}

	res := &WalkResult{Units: []*models.BasinUnit{root}}
	visited := map[string]bool{root.UnitID: true}
	frontier := []string{root.UnitID}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if maxSteps > 0 && res.Steps >= maxSteps {
			return nil, fmt.Errorf("%w: basin walk from %s/%s exceeded %d steps", ErrDataIntegrity, hierarchy, start, maxSteps)
		}
		res.Steps++

		tribs, err := g.Tributaries(ctx, hierarchy, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to get tributaries: %w", err)
		}

		next := make([]string, 0, len(tribs))
		for _, u := range tribs {
			if visited[u.UnitID] {
				return nil, fmt.Errorf("%w: basin %s/%s is reached twice, outlet relation has a cycle", ErrDataIntegrity, hierarchy, u.UnitID)
			}
			visited[u.UnitID] = true
			res.Units = append(res.Units, u)
			next = append(next, u.UnitID)
		}
		sort.Strings(next)
		frontier = next
	}
	return res, nil
}

// CrossBorderExtender adds contributing area from outside the jurisdiction
type CrossBorderExtender struct {
	borders      *BorderIndex
	graph        BasinGraph
	jurisdiction *spatial.Jurisdiction
	external     ExternalDelineator
	proj         *spatial.Albers
	maxSteps     int
	log          logrus.FieldLogger
}

// CrossBorderOptions wires the optional collaborators. Any of them may be
// nil, which disables the matching step.
type CrossBorderOptions struct {
	Borders      *BorderIndex
	Graph        BasinGraph
	Jurisdiction *spatial.Jurisdiction
	External     ExternalDelineator
	Projection   *spatial.Albers
	MaxSteps     int
}

// NewCrossBorderExtender creates an extender
func NewCrossBorderExtender(opts CrossBorderOptions, log logrus.FieldLogger) *CrossBorderExtender {
	if opts.Projection == nil {
		opts.Projection = spatial.BCAlbers
	}
	return &CrossBorderExtender{
		borders:      opts.Borders,
		graph:        opts.Graph,
		jurisdiction: opts.Jurisdiction,
		external:     opts.External,
		proj:         opts.Projection,
		maxSteps:     opts.MaxSteps,
		log:          log,
	}
}

// Extend returns one fragment per border crossed upstream of e
func (x *CrossBorderExtender) Extend(ctx context.Context, e *models.Event) ([]*models.Fragment, error) {
	if x.graph == nil {
		return nil, nil
	}
	crossings := x.borders.Upstream(e)
	if len(crossings) == 0 {
		return nil, nil
	}

	byBorder := make(map[string][]geom.Geometry)
	seen := make(map[string]bool)
	var borders []string
	for _, c := range crossings {
		key := c.Hierarchy + "/" + c.BasinUnitID
		if seen[key] {
			continue
		}
		seen[key] = true

		walk, err := WalkUp(ctx, x.graph, c.Hierarchy, c.BasinUnitID, x.maxSteps)
		if err != nil {
			if errors.Is(err, ErrDataIntegrity) {
				return nil, NewPointError(KindDataIntegrity, e.PointID, err)
			}
			return nil, err
		}
		if _, ok := byBorder[c.Border]; !ok {
			borders = append(borders, c.Border)
		}
		for _, u := range walk.Units {
			byBorder[c.Border] = append(byBorder[c.Border], u.Geometry)
		}
		x.log.WithFields(logrus.Fields{
			"point_id":  e.PointID,
			"border":    c.Border,
			"hierarchy": c.Hierarchy,
			"start":     c.BasinUnitID,
			"units":     len(walk.Units),
			"steps":     walk.Steps,
		}).Info("Walked basins across border")
	}

	sort.Strings(borders)
	frags := make([]*models.Fragment, 0, len(borders))
	for _, border := range borders {
		g, err := spatial.UnionAll(byBorder[border])
		if err != nil {
			return nil, NewPointError(KindInvalidGeometry, e.PointID, err)
		}
		frags = append(frags, &models.Fragment{
			PointID:  e.PointID,
			Source:   models.CrossBorderSource(border),
			Geometry: g,
		})
	}
	return frags, nil
}

// Outside reports whether pt lies outside the jurisdiction. Without a
// boundary every point is inside.
func (x *CrossBorderExtender) Outside(pt models.InputPoint) bool {
	if x.jurisdiction == nil {
		return false
	}
	return !x.jurisdiction.Contains(x.proj.Inverse(spatial.XY{X: pt.X, Y: pt.Y}))
}

// ExtendExternal delineates a point outside the jurisdiction with the
// external services. A nil fragment and nil error mean the services found
// nothing; that is logged and the point skipped.
func (x *CrossBorderExtender) ExtendExternal(ctx context.Context, pt models.InputPoint) (*models.Fragment, error) {
	if x.external == nil {
		return nil, nil
	}
	ll := x.proj.Inverse(spatial.XY{X: pt.X, Y: pt.Y})
	log := x.log.WithFields(logrus.Fields{"point_id": pt.ID, "lon": ll.Lon, "lat": ll.Lat})
	if x.jurisdiction != nil {
		log = log.WithField("border_km", x.jurisdiction.DistanceToVertex(ll)/1000)
	}

	m, err := x.external.IndexPoint(ctx, ll)
	if errors.Is(err, waters.ErrNoMatch) {
		log.Warn("No external stream near point, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, x.serviceError(pt.ID, err)
	}

	g, err := x.external.DelineateUpstream(ctx, m)
	if errors.Is(err, waters.ErrNoMatch) {
		log.WithField("comid", m.ComID).Warn("External delineation returned nothing, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, x.serviceError(pt.ID, err)
	}
	if err := spatial.Validate(g); err != nil {
		return nil, NewPointError(KindInvalidGeometry, pt.ID, err)
	}

	log.WithFields(logrus.Fields{"comid": m.ComID, "area": g.Area()}).Info("Delineated point outside jurisdiction")
	return &models.Fragment{PointID: pt.ID, Source: models.SourceExternal, Geometry: g}, nil
}

func (x *CrossBorderExtender) serviceError(pointID string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewPointError(KindExternalService, pointID, err)
}
