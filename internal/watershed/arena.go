package watershed

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/raster"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
)

// Arena holds the intermediate artifacts of one point while it moves
// through the pipeline. Nothing in it is shared with other points, so
// points can be processed in parallel. It is dropped when the point is done.
type Arena struct {
	ID    uuid.UUID
	Point models.InputPoint
	Event *models.Event

	Reach     []*models.StreamSegment
	ReachLine []spatial.XY // local reach geometry, downstream to upstream
	Along     float64      // position of the point along ReachLine
	PourPoint spatial.XY   // point snapped to ReachLine

	Bottom []*models.WatershedPolygon

	// DEM refinement
	Hex  []spatial.HexCell
	DEM  *raster.Grid
	Burn [][]spatial.XY

	Method  RefineMethod
	Refined geom.Geometry
}

// NewArena opens an arena for pt
func NewArena(pt models.InputPoint) *Arena {
	return &Arena{ID: uuid.New(), Point: pt}
}

// SetReach stores the local reach and locates the point on it
func (a *Arena) SetReach(reach []*models.StreamSegment) error {
	var parts [][]spatial.XY
	for _, s := range reach {
		parts = append(parts, spatial.LineParts(s.Geometry)...)
	}
	line := spatial.MergeParts(parts)
	loc, err := spatial.Locate(line, spatial.XY{X: a.Point.X, Y: a.Point.Y})
	if err != nil {
		return fmt.Errorf("failed to locate point on reach: %w", err)
	}
	a.Reach = reach
	a.ReachLine = line
	a.Along = loc.Along
	a.PourPoint = loc.Point
	return nil
}

// UpstreamLine is the part of the local reach above the point
func (a *Arena) UpstreamLine() []spatial.XY {
	return spatial.SubLine(a.ReachLine, a.Along)
}

// Release drops the arena's references
func (a *Arena) Release() {
	a.Reach = nil
	a.ReachLine = nil
	a.Bottom = nil
	a.Hex = nil
	a.DEM = nil
	a.Burn = nil
	a.Refined = geom.Geometry{}
}
