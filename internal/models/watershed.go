package models

import (
	"github.com/peterstace/simplefeatures/geom"

	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// WatershedPolygon is a pre-computed fundamental watershed
type WatershedPolygon struct {
	WatershedFeatureID int64
	WSCode             wscode.Code
	LocalCode          wscode.Code
	WaterbodyKey       int64
	WaterbodyType      string
	Geometry           geom.Geometry
}

// Fragment sources
const (
	SourcePrelim      = "prelim"
	SourceUnrefined   = "unrefined"
	SourceDEMRefined  = "DEM refined"
	SourceCutRefined  = "cut refined"
	SourceExternal    = "external delineation"
	sourceCrossBorder = "cross-border "
)

// CrossBorderSource is the fragment source for area across the named border
func CrossBorderSource(border string) string {
	return sourceCrossBorder + border
}

// Fragment is one polygon of a point's assembled watershed
type Fragment struct {
	ID                 int64         `json:"id"`
	PointID            string        `json:"point_id"`
	Source             string        `json:"source"`
	WatershedFeatureID int64         `json:"watershed_feature_id,omitempty"`
	Area               float64       `json:"area"`
	Geometry           geom.Geometry `json:"-"`
}

// BasinUnit is a polygon of an external basin hierarchy
type BasinUnit struct {
	Hierarchy string        `yaml:"hierarchy"`
	UnitID    string        `yaml:"unit_id"`
	OutletID  string        `yaml:"outlet_id"` // next unit downstream, empty at a terminal outlet
	Geometry  geom.Geometry `yaml:"-"`
}

// BorderCrossing marks where a stream leaves the jurisdiction. Any point
// whose watershed contains WSCode/LocalCode drains area from across Border,
// starting at basin unit BasinUnitID.
type BorderCrossing struct {
	Border      string `yaml:"border"`
	Hierarchy   string `yaml:"hierarchy"` // empty picks the default for the border
	WSCode      string `yaml:"wscode"`
	LocalCode   string `yaml:"localcode"`
	BasinUnitID string `yaml:"basin_unit_id"`
}
