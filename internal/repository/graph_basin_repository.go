package repository

import (
	"context"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/jengzang/fwa-watersheds-go/internal/graph"
	"github.com/jengzang/fwa-watersheds-go/internal/models"
)

const (
	upsertBasinCypher = `MERGE (u:BasinUnit {hierarchy: $hierarchy, unitId: $unitId})
SET u.outletId = $outletId, u.wkt = $wkt
WITH u
WHERE $outletId <> ''
MERGE (d:BasinUnit {hierarchy: $hierarchy, unitId: $outletId})
MERGE (u)-[:DRAINS_TO]->(d)`

	basinUnitCypher = `MATCH (u:BasinUnit {hierarchy: $hierarchy, unitId: $unitId})
RETURN u.unitId AS unitId, u.outletId AS outletId, u.wkt AS wkt`

	basinTributariesCypher = `MATCH (u:BasinUnit {hierarchy: $hierarchy})
WHERE u.outletId IN $ids
RETURN u.unitId AS unitId, u.outletId AS outletId, u.wkt AS wkt
ORDER BY unitId`
)

// GraphBasinRepository stores basin hierarchies as a DRAINS_TO graph
type GraphBasinRepository struct {
	client graph.Client
}

// NewGraphBasinRepository creates a basin store over a graph client
func NewGraphBasinRepository(client graph.Client) *GraphBasinRepository {
	return &GraphBasinRepository{client: client}
}

// Insert stores a basin unit and its outlet edge
func (r *GraphBasinRepository) Insert(ctx context.Context, u *models.BasinUnit) error {
	_, err := r.client.ExecuteWrite(ctx, upsertBasinCypher, map[string]any{
		"hierarchy": u.Hierarchy,
		"unitId":    u.UnitID,
		"outletId":  u.OutletID,
		"wkt":       u.Geometry.AsText(),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert basin %s/%s: %w", u.Hierarchy, u.UnitID, err)
	}
	return nil
}

// Unit retrieves one basin unit
func (r *GraphBasinRepository) Unit(ctx context.Context, hierarchy, id string) (*models.BasinUnit, error) {
	res, err := r.client.ExecuteRead(ctx, basinUnitCypher, map[string]any{"hierarchy": hierarchy, "unitId": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get basin %s/%s: %w", hierarchy, id, err)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("basin %s/%s: %w", hierarchy, id, ErrNotFound)
	}
	return recordToBasin(hierarchy, res.Records[0])
}

// Tributaries returns the units whose outlet is one of ids
func (r *GraphBasinRepository) Tributaries(ctx context.Context, hierarchy string, ids []string) ([]*models.BasinUnit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := r.client.ExecuteRead(ctx, basinTributariesCypher, map[string]any{"hierarchy": hierarchy, "ids": ids})
	if err != nil {
		return nil, fmt.Errorf("failed to query tributaries: %w", err)
	}

	out := make([]*models.BasinUnit, 0, len(res.Records))
	for _, rec := range res.Records {
		u, err := recordToBasin(hierarchy, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func recordToBasin(hierarchy string, rec graph.Record) (*models.BasinUnit, error) {
	u := &models.BasinUnit{
		Hierarchy: hierarchy,
		UnitID:    rec.String("unitId"),
		OutletID:  rec.String("outletId"),
	}
	wkt := rec.String("wkt")
	if wkt == "" {
		return nil, fmt.Errorf("basin %s/%s has no geometry", hierarchy, u.UnitID)
	}
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("basin %s/%s: %w", hierarchy, u.UnitID, err)
	}
	u.Geometry = g
	return u, nil
}
