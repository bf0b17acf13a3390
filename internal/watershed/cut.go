package watershed

import (
	"context"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
)

// CutRefiner refines the bottom watershed of a point on a double line river
// or canal. The river polygons and the bank polygons sharing an edge with
// them are cut across the channel at the point, keeping the upstream side.
type CutRefiner struct {
	log logrus.FieldLogger
}

// NewCutRefiner creates a cut refiner
func NewCutRefiner(log logrus.FieldLogger) *CutRefiner {
	return &CutRefiner{log: log}
}

// Refine returns the refined local watershed. Any failure wraps
// ErrInvalidGeometry so the caller can fall back to DEM.
func (r *CutRefiner) Refine(ctx context.Context, a *Arena) (geom.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return geom.Geometry{}, err
	}
	g, err := r.cut(a)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("%w: cut: %v", ErrInvalidGeometry, err)
	}
	return g, nil
}

func (r *CutRefiner) cut(a *Arena) (geom.Geometry, error) {
	var rivers, others []*models.WatershedPolygon
	for _, w := range a.Bottom {
		if w.WaterbodyKey != 0 {
			rivers = append(rivers, w)
		} else {
			others = append(others, w)
		}
	}
	if len(rivers) == 0 {
		return geom.Geometry{}, fmt.Errorf("no waterbody polygon under point")
	}

	parts := make([]geom.Geometry, 0, len(a.Bottom))
	for _, w := range rivers {
		parts = append(parts, w.Geometry)
	}
	river, err := spatial.UnionAll(parts)
	if err != nil {
		return geom.Geometry{}, err
	}

	banks := 0
	for _, w := range others {
		ok, err := spatial.SharesBoundary(river, w.Geometry)
		if err != nil {
			return geom.Geometry{}, err
		}
		if ok {
			parts = append(parts, w.Geometry)
			banks++
		}
	}
	area, err := spatial.UnionAll(parts)
	if err != nil {
		return geom.Geometry{}, err
	}

	upstream := a.UpstreamLine()
	if len(upstream) < 2 {
		return geom.Geometry{}, fmt.Errorf("point is at the top of its reach")
	}
	dir, err := spatial.DirectionAt(a.ReachLine, a.Along)
	if err != nil {
		return geom.Geometry{}, err
	}

	b, ok := spatial.BoundsOf(area)
	if !ok {
		return geom.Geometry{}, spatial.ErrEmptyGeometry
	}
	size := b.Width() + b.Height() + spatial.PolylineLength(a.ReachLine)
	half, err := spatial.HalfPlane(a.PourPoint, dir, size)
	if err != nil {
		return geom.Geometry{}, err
	}

	clipped, err := geom.Intersection(area, half)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("failed to cut at point: %w", err)
	}

	stream, err := geom.UnmarshalWKT(spatial.LineStringWKT(upstream))
	if err != nil {
		return geom.Geometry{}, err
	}
	var keep []geom.Geometry
	for _, p := range spatial.Polygons(clipped) {
		if geom.Intersects(p, stream) {
			keep = append(keep, p)
		}
	}
	out, err := spatial.UnionAll(keep)
	if err != nil {
		return geom.Geometry{}, err
	}
	if err := spatial.Validate(out); err != nil {
		return geom.Geometry{}, err
	}

	r.log.WithFields(logrus.Fields{
		"point_id": a.Point.ID,
		"rivers":   len(rivers),
		"banks":    banks,
		"area":     out.Area(),
	}).Debug("Cut refined")
	return out, nil
}
