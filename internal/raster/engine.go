package raster

import (
	"context"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
)

// Request is one pour point delineation
type Request struct {
	DEM          *Grid
	Streams      [][]spatial.XY // burned into the DEM before filling
	PourPoint    spatial.XY
	SnapDistance float64
	BurnDepth    float64
}

// Result is the delineated catchment
type Result struct {
	Catchment    geom.Geometry
	Outlet       spatial.XY
	Cells        int
	Accumulation float64
}

// Engine delineates the catchment draining to a pour point
type Engine interface {
	Delineate(ctx context.Context, req Request) (*Result, error)
}

// D8Engine is an in-process Engine: stream burning, priority flood fill,
// D8 flow direction and accumulation, then an upstream trace from the
// snapped pour point.
type D8Engine struct {
	Epsilon float64
}

// NewD8Engine creates an engine with the default fill gradient
func NewD8Engine() *D8Engine {
	return &D8Engine{Epsilon: DefaultEpsilon}
}

// Delineate implements Engine. The request DEM is not modified.
func (e *D8Engine) Delineate(ctx context.Context, req Request) (*Result, error) {
	if req.DEM == nil || req.DEM.Len() == 0 {
		return nil, fmt.Errorf("empty DEM: %w", ErrNoResult)
	}

	dem := req.DEM.Clone()
	burned := Burn(dem, req.Streams, req.BurnDepth)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filled := Fill(dem, e.Epsilon)

	ds := FlowDirection(filled)
	acc, _, err := Accumulation(filled, ds)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outlet, err := Snap(filled, acc, burned, req.PourPoint, req.SnapDistance)
	if err != nil {
		return nil, err
	}

	mask := Upstream(ds, outlet)
	cells := 0
	for _, m := range mask {
		if m {
			cells++
		}
	}

	catchment, err := Polygonize(filled, mask)
	if err != nil {
		return nil, err
	}
	if catchment.IsEmpty() {
		return nil, ErrNoResult
	}

	return &Result{
		Catchment:    catchment,
		Outlet:       filled.Center(outlet),
		Cells:        cells,
		Accumulation: acc[outlet],
	}, nil
}
