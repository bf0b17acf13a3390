package watershed

import (
	"context"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/waters"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// StreamStore is the read side of the stream network
type StreamStore interface {
	Nearest(ctx context.Context, p spatial.XY, radius float64) ([]models.StreamCandidate, error)
	LocalReach(ctx context.Context, blueLineKey int64, ws, local wscode.Code) ([]*models.StreamSegment, error)
	Upstream(ctx context.Context, ws wscode.Code) ([]*models.StreamSegment, error)
	Waterbody(ctx context.Context, key int64) (*models.Waterbody, error)
}

// WatershedStore is the read side of the fundamental watershed polygons
type WatershedStore interface {
	Descendants(ctx context.Context, ws wscode.Code) ([]*models.WatershedPolygon, error)
	ByWaterbodyKeys(ctx context.Context, keys []int64) ([]*models.WatershedPolygon, error)
	ByCodes(ctx context.Context, ws, local wscode.Code) ([]*models.WatershedPolygon, error)
}

// EventStore keeps referenced points
type EventStore interface {
	ReplacePoint(ctx context.Context, pointID string, events []*models.Event) error
}

// FragmentStore keeps the assembled watershed of each point
type FragmentStore interface {
	ReplacePoint(ctx context.Context, pointID string, frags []*models.Fragment) error
	Add(ctx context.Context, frags ...*models.Fragment) error
	ReplaceSource(ctx context.Context, pointID, oldSource string, f *models.Fragment) error
	ListByPoint(ctx context.Context, pointID string) ([]*models.Fragment, error)
}

// RunStore tracks batch progress and per-point outcomes
type RunStore interface {
	MarkAsRunning(ctx context.Context, id string, total int) error
	UpdateProgress(ctx context.Context, id string, processed, failed, unmatched int, progress float64) error
	MarkAsCompleted(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id string, errorMessage string) error
	SaveOutcome(ctx context.Context, o *models.PointOutcome) error
}

// BasinGraph answers outlet queries over an external basin hierarchy
type BasinGraph interface {
	Unit(ctx context.Context, hierarchy, id string) (*models.BasinUnit, error)
	Tributaries(ctx context.Context, hierarchy string, ids []string) ([]*models.BasinUnit, error)
}

// ExternalDelineator indexes a geographic point onto a foreign network and
// delineates upstream of it
type ExternalDelineator interface {
	IndexPoint(ctx context.Context, p spatial.LonLat) (*waters.Match, error)
	DelineateUpstream(ctx context.Context, m *waters.Match) (geom.Geometry, error)
}
