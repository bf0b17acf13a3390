package repository

import (
	"context"
	"fmt"
	"io"

	"github.com/peterstace/simplefeatures/geom"
	"gopkg.in/yaml.v3"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// Fixture is a small extract of the reference layers, written as YAML with
// geometries in WKT. Codes may be given in the dashed FWA form.
type Fixture struct {
	Waterbodies []models.Waterbody `yaml:"waterbodies"`
	Streams     []fixtureStream    `yaml:"streams"`
	Watersheds  []fixtureWatershed `yaml:"watersheds"`
	Basins      []fixtureBasin     `yaml:"basins"`
}

type fixtureStream struct {
	LinearFeatureID        int64   `yaml:"linear_feature_id"`
	BlueLineKey            int64   `yaml:"blue_line_key"`
	DownstreamRouteMeasure float64 `yaml:"downstream_route_measure"`
	Length                 float64 `yaml:"length_metre"`
	WSCode                 string  `yaml:"wscode"`
	LocalCode              string  `yaml:"localcode"`
	WaterbodyKey           int64   `yaml:"waterbody_key"`
	EdgeType               int     `yaml:"edge_type"`
	GNISName               string  `yaml:"gnis_name"`
	WKT                    string  `yaml:"wkt"`
}

type fixtureWatershed struct {
	WatershedFeatureID int64  `yaml:"watershed_feature_id"`
	WSCode             string `yaml:"wscode"`
	LocalCode          string `yaml:"localcode"`
	WaterbodyKey       int64  `yaml:"waterbody_key"`
	WaterbodyType      string `yaml:"waterbody_type"`
	WKT                string `yaml:"wkt"`
}

type fixtureBasin struct {
	Hierarchy string `yaml:"hierarchy"`
	UnitID    string `yaml:"unit_id"`
	OutletID  string `yaml:"outlet_id"`
	WKT       string `yaml:"wkt"`
}

// BasinWriter is implemented by both basin stores
type BasinWriter interface {
	Insert(ctx context.Context, u *models.BasinUnit) error
}

// ReadFixture decodes a YAML fixture
func ReadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	return &f, nil
}

// FixtureStores are the destinations of a fixture load. Basins may be nil
// when the fixture has none.
type FixtureStores struct {
	Streams    *StreamRepository
	Watersheds *WatershedRepository
	Basins     BasinWriter
}

// Load writes the fixture to the stores
func (f *Fixture) Load(ctx context.Context, stores FixtureStores) error {
	for i := range f.Waterbodies {
		if err := stores.Streams.InsertWaterbody(ctx, &f.Waterbodies[i]); err != nil {
			return err
		}
	}

	for _, s := range f.Streams {
		seg, err := s.segment()
		if err != nil {
			return fmt.Errorf("fixture stream %d: %w", s.LinearFeatureID, err)
		}
		if err := stores.Streams.Insert(ctx, seg); err != nil {
			return err
		}
	}

	for _, w := range f.Watersheds {
		poly, err := w.polygon()
		if err != nil {
			return fmt.Errorf("fixture watershed %d: %w", w.WatershedFeatureID, err)
		}
		if err := stores.Watersheds.Insert(ctx, poly); err != nil {
			return err
		}
	}

	if len(f.Basins) > 0 && stores.Basins == nil {
		return fmt.Errorf("fixture has %d basin units but no basin store", len(f.Basins))
	}
	for _, b := range f.Basins {
		g, err := geom.UnmarshalWKT(b.WKT)
		if err != nil {
			return fmt.Errorf("fixture basin %s: %w", b.UnitID, err)
		}
		u := &models.BasinUnit{Hierarchy: b.Hierarchy, UnitID: b.UnitID, OutletID: b.OutletID, Geometry: g}
		if err := stores.Basins.Insert(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (s fixtureStream) segment() (*models.StreamSegment, error) {
	ws, local, err := parseCodes(s.WSCode, s.LocalCode)
	if err != nil {
		return nil, err
	}
	g, err := geom.UnmarshalWKT(s.WKT)
	if err != nil {
		return nil, err
	}
	length := s.Length
	if length == 0 {
		length = g.Length()
	}
	return &models.StreamSegment{
		LinearFeatureID:        s.LinearFeatureID,
		BlueLineKey:            s.BlueLineKey,
		DownstreamRouteMeasure: s.DownstreamRouteMeasure,
		Length:                 length,
		WSCode:                 ws,
		LocalCode:              local,
		WaterbodyKey:           s.WaterbodyKey,
		EdgeType:               s.EdgeType,
		GNISName:               s.GNISName,
		Geometry:               g,
	}, nil
}

func (w fixtureWatershed) polygon() (*models.WatershedPolygon, error) {
	ws, err := wscode.Parse(w.WSCode)
	if err != nil {
		return nil, err
	}
	local, err := wscode.Parse(w.LocalCode)
	if err != nil {
		return nil, err
	}
	g, err := geom.UnmarshalWKT(w.WKT)
	if err != nil {
		return nil, err
	}
	return &models.WatershedPolygon{
		WatershedFeatureID: w.WatershedFeatureID,
		WSCode:             ws,
		LocalCode:          local,
		WaterbodyKey:       w.WaterbodyKey,
		WaterbodyType:      w.WaterbodyType,
		Geometry:           g,
	}, nil
}
