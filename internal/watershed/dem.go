package watershed

import (
	"context"
	"errors"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/dem"
	"github.com/jengzang/fwa-watersheds-go/internal/raster"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// DEMOptions tunes the DEM refiner
type DEMOptions struct {
	Expansion    float64 // metres added around the local polygon before extracting the DEM
	HexEdge      float64
	SnapDistance float64
	BurnDepth    float64
}

// DefaultDEMOptions match the 25m provincial DEM
var DefaultDEMOptions = DEMOptions{
	Expansion:    250,
	HexEdge:      25,
	SnapDistance: 50,
	BurnDepth:    10,
}

// DEMRefiner refines the bottom watershed of a point on a single line
// stream by delineating the catchment above the point from elevation, then
// rebuilding it from the hexagon cells of the local polygon it touches.
type DEMRefiner struct {
	source  dem.Source
	engine  raster.Engine
	streams StreamStore
	opts    DEMOptions
	log     logrus.FieldLogger
}

// NewDEMRefiner creates a DEM refiner. Zero options take the defaults.
func NewDEMRefiner(source dem.Source, engine raster.Engine, streams StreamStore, opts DEMOptions, log logrus.FieldLogger) *DEMRefiner {
	if opts.Expansion <= 0 {
		opts.Expansion = DefaultDEMOptions.Expansion
	}
	if opts.HexEdge <= 0 {
		opts.HexEdge = DefaultDEMOptions.HexEdge
	}
	if opts.SnapDistance <= 0 {
		opts.SnapDistance = DefaultDEMOptions.SnapDistance
	}
	if opts.BurnDepth <= 0 {
		opts.BurnDepth = DefaultDEMOptions.BurnDepth
	}
	return &DEMRefiner{source: source, engine: engine, streams: streams, opts: opts, log: log}
}

// Refine returns the refined local watershed. Empty or invalid results and
// an empty catchment wrap ErrInvalidGeometry.
func (r *DEMRefiner) Refine(ctx context.Context, a *Arena) (geom.Geometry, error) {
	var parts []geom.Geometry
	for _, w := range a.Bottom {
		if w.WaterbodyKey == 0 {
			parts = append(parts, w.Geometry)
		}
	}
	if len(parts) == 0 {
		return geom.Geometry{}, fmt.Errorf("%w: no land polygon under point", ErrInvalidGeometry)
	}
	local, err := spatial.UnionAll(parts)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	b, ok := spatial.BoundsOf(local)
	if !ok {
		return geom.Geometry{}, fmt.Errorf("%w: empty local polygon", ErrInvalidGeometry)
	}

	if a.Hex, err = spatial.HexCutout(local, r.opts.HexEdge); err != nil {
		return geom.Geometry{}, fmt.Errorf("%w: hex cutout: %v", ErrInvalidGeometry, err)
	}

	extent := b.Expand(r.opts.Expansion)
	if a.DEM, err = r.source.Extract(ctx, extent); err != nil {
		if ctx.Err() != nil {
			return geom.Geometry{}, ctx.Err()
		}
		return geom.Geometry{}, fmt.Errorf("%w: DEM extract: %v", ErrExternalService, err)
	}

	if a.Burn, err = r.burnLines(ctx, a, extent); err != nil {
		return geom.Geometry{}, err
	}

	res, err := r.engine.Delineate(ctx, raster.Request{
		DEM:          a.DEM,
		Streams:      a.Burn,
		PourPoint:    a.PourPoint,
		SnapDistance: r.opts.SnapDistance,
		BurnDepth:    r.opts.BurnDepth,
	})
	if errors.Is(err, raster.ErrNoResult) {
		return geom.Geometry{}, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("failed to delineate: %w", err)
	}

	var cells []geom.Geometry
	for _, c := range a.Hex {
		if geom.Intersects(c.Geometry, res.Catchment) {
			cells = append(cells, c.Geometry)
		}
	}
	out, err := spatial.UnionAll(cells)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if out, err = spatial.Polygonal(out); err != nil {
		return geom.Geometry{}, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if err := spatial.Validate(out); err != nil {
		return geom.Geometry{}, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	r.log.WithFields(logrus.Fields{
		"point_id":     a.Point.ID,
		"hex_cells":    len(a.Hex),
		"kept_cells":   len(cells),
		"dem_cells":    res.Cells,
		"accumulation": res.Accumulation,
	}).Debug("DEM refined")
	return out, nil
}

// burnLines returns the streams above the point inside extent: the rest of
// its own reach plus every upstream segment that reaches into the extent
func (r *DEMRefiner) burnLines(ctx context.Context, a *Arena, extent spatial.Bounds) ([][]spatial.XY, error) {
	lines := [][]spatial.XY{a.UpstreamLine()}

	e := a.Event
	segs, err := r.streams.Upstream(ctx, e.WSCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get upstream streams: %w", err)
	}
	for _, s := range segs {
		if s.BlueLineKey == e.BlueLineKey && s.LocalCode == e.LocalCode {
			continue
		}
		if !wscode.IsUpstream(e.WSCode, e.LocalCode, s.WSCode, s.LocalCode) {
			continue
		}
		sb, ok := spatial.BoundsOf(s.Geometry)
		if !ok || !sb.Intersects(extent) {
			continue
		}
		lines = append(lines, spatial.LineParts(s.Geometry)...)
	}
	return lines, nil
}
