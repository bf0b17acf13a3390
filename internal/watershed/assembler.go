package watershed

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// Assembler collects the fundamental watersheds upstream of a referenced point
type Assembler struct {
	watersheds WatershedStore
	log        logrus.FieldLogger
}

// NewAssembler creates an assembler
func NewAssembler(watersheds WatershedStore, log logrus.FieldLogger) *Assembler {
	return &Assembler{watersheds: watersheds, log: log}
}

// isBottom reports whether w is one of the polygons the point itself sits in
func isBottom(e *models.Event, w *models.WatershedPolygon) bool {
	return w.WSCode == e.WSCode && w.LocalCode == e.LocalCode
}

// AssemblePrelim returns every polygon upstream of e, ordered by feature id.
// The point's own bottom polygons are never included. When a selected
// polygon belongs to a lake or reservoir, the rest of that waterbody's
// polygons are added as well, wherever they sit in the code tree.
func (a *Assembler) AssemblePrelim(ctx context.Context, e *models.Event) ([]*models.WatershedPolygon, error) {
	cands, err := a.watersheds.Descendants(ctx, e.WSCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get watersheds under %s: %w", e.WSCode, err)
	}

	selected := make(map[int64]*models.WatershedPolygon)
	lakes := make(map[int64]struct{})
	for _, w := range cands {
		if isBottom(e, w) || !wscode.IsUpstream(e.WSCode, e.LocalCode, w.WSCode, w.LocalCode) {
			continue
		}
		selected[w.WatershedFeatureID] = w
		if w.WaterbodyKey != 0 && isStandingType(w.WaterbodyType) {
			lakes[w.WaterbodyKey] = struct{}{}
		}
	}

	if len(lakes) > 0 {
		keys := make([]int64, 0, len(lakes))
		for k := range lakes {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		rest, err := a.watersheds.ByWaterbodyKeys(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to complete waterbodies: %w", err)
		}
		added := 0
		for _, w := range rest {
			if isBottom(e, w) {
				continue
			}
			if _, ok := selected[w.WatershedFeatureID]; !ok {
				selected[w.WatershedFeatureID] = w
				added++
			}
		}
		a.log.WithFields(logrus.Fields{
			"point_id":    e.PointID,
			"waterbodies": len(keys),
			"added":       added,
		}).Debug("Completed waterbodies")
	}

	out := make([]*models.WatershedPolygon, 0, len(selected))
	for _, w := range selected {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WatershedFeatureID < out[j].WatershedFeatureID })
	return out, nil
}

// BottomPolygons returns the polygons sharing the point's codes: the area
// that refinement works on
func (a *Assembler) BottomPolygons(ctx context.Context, e *models.Event) ([]*models.WatershedPolygon, error) {
	polys, err := a.watersheds.ByCodes(ctx, e.WSCode, e.LocalCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get bottom polygons: %w", err)
	}
	return polys, nil
}

func isStandingType(t string) bool {
	return t == models.WaterbodyLake || t == models.WaterbodyManmade
}

// PrelimFragments converts assembled polygons to fragments
func PrelimFragments(pointID string, polys []*models.WatershedPolygon) []*models.Fragment {
	frags := make([]*models.Fragment, len(polys))
	for i, w := range polys {
		frags[i] = &models.Fragment{
			PointID:            pointID,
			Source:             models.SourcePrelim,
			WatershedFeatureID: w.WatershedFeatureID,
			Geometry:           w.Geometry,
		}
	}
	return frags
}
