package watershed

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// Basin hierarchies walked across each border
const (
	BorderUSA            = "USA"
	HierarchyWBD         = "wbd"
	HierarchyHydroBASINS = "hydrobasins"
)

// HierarchyFor returns the basin hierarchy used across border
func HierarchyFor(border string) string {
	if border == BorderUSA {
		return HierarchyWBD
	}
	return HierarchyHydroBASINS
}

// Crossing is a parsed border crossing
type Crossing struct {
	models.BorderCrossing
	WS, Local wscode.Code
}

// BorderIndex finds the border crossings upstream of a point
type BorderIndex struct {
	crossings []Crossing
}

type bordersFile struct {
	Crossings []models.BorderCrossing `yaml:"crossings"`
	Boundary  []spatial.LonLat        `yaml:"boundary"`
}

// NewBorderIndex parses crossing codes
func NewBorderIndex(rows []models.BorderCrossing) (*BorderIndex, error) {
	idx := &BorderIndex{crossings: make([]Crossing, 0, len(rows))}
	for i, row := range rows {
		if row.Border == "" || row.BasinUnitID == "" {
			return nil, fmt.Errorf("crossing %d: border and basin_unit_id are required", i)
		}
		ws, err := wscode.Parse(row.WSCode)
		if err != nil {
			return nil, fmt.Errorf("crossing %d: %w", i, err)
		}
		local := ws
		if row.LocalCode != "" {
			if local, err = wscode.Parse(row.LocalCode); err != nil {
				return nil, fmt.Errorf("crossing %d: %w", i, err)
			}
		}
		if row.Hierarchy == "" {
			row.Hierarchy = HierarchyFor(row.Border)
		}
		idx.crossings = append(idx.crossings, Crossing{BorderCrossing: row, WS: ws, Local: local})
	}
	return idx, nil
}

// LoadBorders reads the crossing lookup and, when present, the jurisdiction
// boundary from one YAML document
func LoadBorders(r io.Reader) (*BorderIndex, *spatial.Jurisdiction, error) {
	var f bordersFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, nil, fmt.Errorf("failed to decode borders file: %w", err)
	}
	idx, err := NewBorderIndex(f.Crossings)
	if err != nil {
		return nil, nil, err
	}
	if len(f.Boundary) == 0 {
		return idx, nil, nil
	}
	j, err := spatial.NewJurisdiction(f.Boundary)
	if err != nil {
		return nil, nil, err
	}
	return idx, j, nil
}

// Upstream returns the crossings draining to the point. A crossing counts
// when its own codes are upstream of the point's.
func (b *BorderIndex) Upstream(e *models.Event) []Crossing {
	if b == nil {
		return nil
	}
	var out []Crossing
	for _, c := range b.crossings {
		if wscode.IsUpstream(e.WSCode, e.LocalCode, c.WS, c.Local) {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of crossings
func (b *BorderIndex) Len() int {
	if b == nil {
		return 0
	}
	return len(b.crossings)
}
