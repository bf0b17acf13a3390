package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// WatershedRepository handles the fundamental watershed polygons
type WatershedRepository struct {
	db *sql.DB
}

// NewWatershedRepository creates a new watershed repository
func NewWatershedRepository(db *sql.DB) *WatershedRepository {
	return &WatershedRepository{db: db}
}

const watershedColumns = "watershed_feature_id, wscode, localcode, waterbody_key, waterbody_type, geom"

// Insert stores a watershed polygon
func (r *WatershedRepository) Insert(ctx context.Context, w *models.WatershedPolygon) error {
	blob, b, err := encodeGeom(w.Geometry)
	if err != nil {
		return fmt.Errorf("watershed %d: %w", w.WatershedFeatureID, err)
	}

	query := `
		INSERT OR REPLACE INTO watersheds_poly (
			watershed_feature_id, wscode, localcode, waterbody_key, waterbody_type, geom,
			min_x, min_y, max_x, max_y
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		w.WatershedFeatureID,
		w.WSCode.Path(),
		w.LocalCode.Path(),
		w.WaterbodyKey,
		w.WaterbodyType,
		blob,
		b.MinX, b.MinY, b.MaxX, b.MaxY,
	)
	if err != nil {
		return fmt.Errorf("failed to insert watershed %d: %w", w.WatershedFeatureID, err)
	}
	return nil
}

func (r *WatershedRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.WatershedPolygon, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query watersheds: %w", err)
	}
	defer rows.Close()

	var out []*models.WatershedPolygon
	for rows.Next() {
		w := &models.WatershedPolygon{}
		var ws, local string
		var blob []byte
		if err := rows.Scan(&w.WatershedFeatureID, &ws, &local, &w.WaterbodyKey, &w.WaterbodyType, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan watershed: %w", err)
		}
		if w.WSCode, w.LocalCode, err = parseCodes(ws, local); err != nil {
			return nil, fmt.Errorf("watershed %d: %w", w.WatershedFeatureID, err)
		}
		if w.Geometry, err = decodeGeom(blob); err != nil {
			return nil, fmt.Errorf("watershed %d: %w", w.WatershedFeatureID, err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Descendants returns every polygon whose watershed code equals or descends
// from ws, ordered by id
func (r *WatershedRepository) Descendants(ctx context.Context, ws wscode.Code) ([]*models.WatershedPolygon, error) {
	return r.query(ctx,
		"SELECT "+watershedColumns+" FROM watersheds_poly WHERE "+descendantFilter+" ORDER BY watershed_feature_id",
		descendantArgs(ws)...)
}

// ByWaterbodyKeys returns every polygon belonging to the given waterbodies
func (r *WatershedRepository) ByWaterbodyKeys(ctx context.Context, keys []int64) ([]*models.WatershedPolygon, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	return r.query(ctx,
		"SELECT "+watershedColumns+" FROM watersheds_poly WHERE waterbody_key IN ("+placeholders+") ORDER BY watershed_feature_id",
		args...)
}

// ByCodes returns the polygons carrying exactly the given codes. For a
// referenced point these are its bottom polygons.
func (r *WatershedRepository) ByCodes(ctx context.Context, ws, local wscode.Code) ([]*models.WatershedPolygon, error) {
	return r.query(ctx,
		"SELECT "+watershedColumns+" FROM watersheds_poly WHERE wscode = ? AND localcode = ? ORDER BY watershed_feature_id",
		ws.Path(), local.Path())
}

// Intersecting returns polygons whose bounding box overlaps b
func (r *WatershedRepository) Intersecting(ctx context.Context, b spatial.Bounds) ([]*models.WatershedPolygon, error) {
	return r.query(ctx,
		"SELECT "+watershedColumns+" FROM watersheds_poly WHERE "+bboxFilter+" ORDER BY watershed_feature_id",
		bboxArgs(b)...)
}
