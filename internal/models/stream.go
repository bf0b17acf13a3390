package models

import (
	"github.com/peterstace/simplefeatures/geom"

	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// InputPoint is a location to delineate, in EPSG:3005
type InputPoint struct {
	ID        string  `json:"id" yaml:"id"`
	X         float64 `json:"x" yaml:"x"`
	Y         float64 `json:"y" yaml:"y"`
	MatchCode string  `json:"match_code,omitempty" yaml:"match_code"` // watershed code the point is expected to sit on
}

// StreamSegment is one edge of the reference stream network
type StreamSegment struct {
	LinearFeatureID        int64         `json:"linear_feature_id" yaml:"linear_feature_id"`
	BlueLineKey            int64         `json:"blue_line_key" yaml:"blue_line_key"`
	DownstreamRouteMeasure float64       `json:"downstream_route_measure" yaml:"downstream_route_measure"`
	Length                 float64       `json:"length_metre" yaml:"length_metre"`
	WSCode                 wscode.Code   `json:"-" yaml:"-"`
	LocalCode              wscode.Code   `json:"-" yaml:"-"`
	WaterbodyKey           int64         `json:"waterbody_key,omitempty" yaml:"waterbody_key"`
	EdgeType               int           `json:"edge_type" yaml:"edge_type"`
	GNISName               string        `json:"gnis_name,omitempty" yaml:"gnis_name"`
	Geometry               geom.Geometry `json:"-" yaml:"-"`
}

// UpstreamMeasure is the route measure at the top of the segment
func (s *StreamSegment) UpstreamMeasure() float64 {
	return s.DownstreamRouteMeasure + s.Length
}

// Edge types of interest
const (
	EdgeTypeSingleLine = 1000
	EdgeTypeDoubleLine = 1250 // main flow through a double line river
)

// Waterbody types
const (
	WaterbodyLake    = "L"
	WaterbodyRiver   = "R"
	WaterbodyManmade = "X"
	WaterbodyWetland = "W"
	WaterbodyGlacier = "G"
	FeatureCodeCanal = "GA03950000"
)

// Waterbody is a lake, river polygon, reservoir or canal
type Waterbody struct {
	WaterbodyKey int64  `json:"waterbody_key" yaml:"waterbody_key"`
	Type         string `json:"waterbody_type" yaml:"waterbody_type"`
	FeatureCode  string `json:"feature_code,omitempty" yaml:"feature_code"`
	GNISName     string `json:"gnis_name,omitempty" yaml:"gnis_name"`
}

// IsChannel reports whether the waterbody is a double line river or a canal.
// Points on channels are refined by cutting rather than by DEM.
func (w *Waterbody) IsChannel() bool {
	if w == nil {
		return false
	}
	return w.Type == WaterbodyRiver || (w.Type == WaterbodyManmade && w.FeatureCode == FeatureCodeCanal)
}

// IsStanding reports whether the waterbody is a lake or reservoir, whose
// catchment polygons are completed as a unit during assembly.
func (w *Waterbody) IsStanding() bool {
	if w == nil {
		return false
	}
	return w.Type == WaterbodyLake || w.Type == WaterbodyManmade
}

// Event is an input point referenced onto the stream network
type Event struct {
	PointID                string      `json:"point_id"`
	Rank                   int         `json:"rank"` // 0 is the match the watershed is built from
	LinearFeatureID        int64       `json:"linear_feature_id"`
	BlueLineKey            int64       `json:"blue_line_key"`
	DownstreamRouteMeasure float64     `json:"downstream_route_measure"`
	StreamMeasure          float64     `json:"stream_measure"` // measure at the bottom of the matched segment
	WSCode                 wscode.Code `json:"-"`
	LocalCode              wscode.Code `json:"-"`
	DistanceToStream       float64     `json:"distance_to_stream"`
	WaterbodyKey           int64       `json:"waterbody_key,omitempty"`
	OnWaterbody            bool        `json:"on_waterbody"`
}

// StreamCandidate is a segment within search distance of an input point
type StreamCandidate struct {
	Segment  *StreamSegment
	Distance float64
	Measure  float64 // route measure of the closest point on the segment
}
