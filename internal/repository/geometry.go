package repository

import (
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// encodeGeom returns the WKB of g with its bounding box
func encodeGeom(g geom.Geometry) ([]byte, spatial.Bounds, error) {
	b, ok := spatial.BoundsOf(g)
	if !ok {
		return nil, spatial.Bounds{}, fmt.Errorf("cannot store empty geometry")
	}
	return g.AsBinary(), b, nil
}

func decodeGeom(blob []byte) (geom.Geometry, error) {
	g, err := geom.UnmarshalWKB(blob)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("failed to decode geometry: %w", err)
	}
	return g, nil
}

func parseCodes(ws, local string) (wscode.Code, wscode.Code, error) {
	w, err := wscode.Parse(ws)
	if err != nil {
		return wscode.Code{}, wscode.Code{}, err
	}
	l, err := wscode.Parse(local)
	if err != nil {
		return wscode.Code{}, wscode.Code{}, err
	}
	return w, l, nil
}

// bboxFilter restricts rows to those whose box overlaps b
const bboxFilter = "max_x >= ? AND min_x <= ? AND max_y >= ? AND min_y <= ?"

func bboxArgs(b spatial.Bounds) []interface{} {
	return []interface{}{b.MinX, b.MaxX, b.MinY, b.MaxY}
}

// descendantFilter matches codes equal to or below a dotted path
const descendantFilter = "(wscode = ? OR wscode LIKE ? || '.%')"

func descendantArgs(c wscode.Code) []interface{} {
	return []interface{}{c.Path(), c.Path()}
}
