package watershed

import (
	"fmt"
	"math"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
)

// RefineMethod is how the bottom polygon of a point is handled
type RefineMethod string

const (
	// MethodDrop omits the bottom polygon: the point is close to the top of it
	MethodDrop RefineMethod = "DROP"
	// MethodSkip keeps the bottom polygon unrefined: the point is close to a confluence
	MethodSkip RefineMethod = "SKIP"
	// MethodCut splits the bottom polygons of a river or canal at the point
	MethodCut RefineMethod = "CUT"
	// MethodDEM delineates the local catchment from elevation
	MethodDEM RefineMethod = "DEM"
)

// Thresholds are the minimum in-channel distances, in metres, from a point to
// the top and bottom of its local watershed for refinement to be worthwhile
type Thresholds struct {
	Top    float64 `mapstructure:"top" json:"top"`
	Bottom float64 `mapstructure:"bottom" json:"bottom"`
}

// ThresholdSet holds the pair for points on single line streams and the pair
// for points on double line rivers and canals
type ThresholdSet struct {
	Stream    Thresholds `mapstructure:"stream" json:"stream"`
	Waterbody Thresholds `mapstructure:"waterbody" json:"waterbody"`
}

// DefaultThresholds are the production values
var DefaultThresholds = ThresholdSet{
	Stream:    Thresholds{Top: 100, Bottom: 50},
	Waterbody: Thresholds{Top: 250, Bottom: 100},
}

// Validate rejects negative or non-finite thresholds
func (t ThresholdSet) Validate() error {
	for name, v := range map[string]float64{
		"stream.top":       t.Stream.Top,
		"stream.bottom":    t.Stream.Bottom,
		"waterbody.top":    t.Waterbody.Top,
		"waterbody.bottom": t.Waterbody.Bottom,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("threshold %s must be a non-negative number, got %v", name, v)
		}
	}
	return nil
}

// SelectRefineMethod classifies a point. It is total: every input maps to
// exactly one method, and DROP wins whenever the point is too close to the
// top, whatever the waterbody.
func SelectRefineMethod(onWaterbody bool, lengthToTop, lengthToBottom float64, t ThresholdSet) RefineMethod {
	th := t.Stream
	if onWaterbody {
		th = t.Waterbody
	}

	switch {
	case lengthToTop < th.Top:
		return MethodDrop
	case lengthToBottom < th.Bottom:
		return MethodSkip
	case onWaterbody:
		return MethodCut
	default:
		return MethodDEM
	}
}

// LocalReachLengths measures from the point to the top and bottom of its
// local reach: the segments of its blue line sharing its codes
func LocalReachLengths(reach []*models.StreamSegment, measure float64) (toTop, toBottom float64, err error) {
	if len(reach) == 0 {
		return 0, 0, fmt.Errorf("empty local reach")
	}
	bottom := math.Inf(1)
	top := math.Inf(-1)
	for _, s := range reach {
		bottom = math.Min(bottom, s.DownstreamRouteMeasure)
		top = math.Max(top, s.UpstreamMeasure())
	}
	if measure < bottom-0.001 || measure > top+0.001 {
		return 0, 0, fmt.Errorf("measure %v outside local reach %v-%v", measure, bottom, top)
	}
	return math.Max(0, top-measure), math.Max(0, measure-bottom), nil
}
