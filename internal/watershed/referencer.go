package watershed

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/repository"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// DefaultSearchRadius is the referencing tolerance in metres
const DefaultSearchRadius = 125.0

// ReferenceOptions controls ReferenceAll
type ReferenceOptions struct {
	Radius  float64
	Closest bool // keep only the best match per point
}

// ReferenceResult is the output of ReferenceAll
type ReferenceResult struct {
	Events    []*models.Event
	Unmatched []string // ids of points with no stream in range
}

// Referencer snaps input points onto the stream network
type Referencer struct {
	streams StreamStore
	log     logrus.FieldLogger
}

// NewReferencer creates a referencer
func NewReferencer(streams StreamStore, log logrus.FieldLogger) *Referencer {
	return &Referencer{streams: streams, log: log}
}

// Reference returns the candidate events for pt within radius. Candidates on
// the point's match code come first, then the rest by distance. No candidate
// is not an error.
func (r *Referencer) Reference(ctx context.Context, pt models.InputPoint, radius float64) ([]*models.Event, error) {
	if radius <= 0 {
		radius = DefaultSearchRadius
	}

	var match wscode.Code
	if pt.MatchCode != "" {
		c, err := wscode.Parse(pt.MatchCode)
		if err != nil {
			return nil, NewPointError(KindDataIntegrity, pt.ID, fmt.Errorf("match code: %w", err))
		}
		match = c
	}

	cands, err := r.streams.Nearest(ctx, spatial.XY{X: pt.X, Y: pt.Y}, radius)
	if err != nil {
		return nil, fmt.Errorf("failed to find streams near %s: %w", pt.ID, err)
	}

	if !match.IsZero() {
		// stable: distance order holds within each group
		sort.SliceStable(cands, func(i, j int) bool {
			mi := cands[i].Segment.WSCode == match
			mj := cands[j].Segment.WSCode == match
			return mi && !mj
		})
	}

	waterbodies := make(map[int64]*models.Waterbody)
	events := make([]*models.Event, 0, len(cands))
	for _, c := range cands {
		seg := c.Segment
		wb, ok := waterbodies[seg.WaterbodyKey]
		if !ok {
			wb, err = r.streams.Waterbody(ctx, seg.WaterbodyKey)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			waterbodies[seg.WaterbodyKey] = wb
		}

		events = append(events, &models.Event{
			PointID:                pt.ID,
			LinearFeatureID:        seg.LinearFeatureID,
			BlueLineKey:            seg.BlueLineKey,
			DownstreamRouteMeasure: c.Measure,
			StreamMeasure:          seg.DownstreamRouteMeasure,
			WSCode:                 seg.WSCode,
			LocalCode:              seg.LocalCode,
			DistanceToStream:       c.Distance,
			WaterbodyKey:           seg.WaterbodyKey,
			OnWaterbody:            wb.IsChannel(),
		})
	}
	return events, nil
}

// ReferenceAll references every point. Points with no stream in range are
// listed in Unmatched and counted in the log.
func (r *Referencer) ReferenceAll(ctx context.Context, pts []models.InputPoint, opts ReferenceOptions) (*ReferenceResult, error) {
	res := &ReferenceResult{}
	for _, pt := range pts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		events, err := r.Reference(ctx, pt, opts.Radius)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			res.Unmatched = append(res.Unmatched, pt.ID)
			continue
		}
		if opts.Closest {
			events = events[:1]
		}
		res.Events = append(res.Events, events...)
	}

	if len(res.Unmatched) > 0 {
		r.log.WithField("unmatched", len(res.Unmatched)).Warnf("%d points unmatched", len(res.Unmatched))
	}
	return res, nil
}

// checkCodes rejects events that cannot be assembled
func checkCodes(e *models.Event) error {
	switch {
	case e.WSCode.IsZero() || e.LocalCode.IsZero():
		return fmt.Errorf("missing watershed code on segment %d", e.LinearFeatureID)
	case e.WSCode.IsUnknown():
		return fmt.Errorf("segment %d is not on the network (code %s)", e.LinearFeatureID, e.WSCode)
	case !e.WSCode.Contains(e.LocalCode):
		return fmt.Errorf("local code %s is outside watershed code %s", e.LocalCode, e.WSCode)
	}
	return nil
}
