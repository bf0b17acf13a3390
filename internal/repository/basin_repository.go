package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
)

// BasinRepository stores external basin hierarchies in sqlite
type BasinRepository struct {
	db *sql.DB
}

// NewBasinRepository creates a new basin repository
func NewBasinRepository(db *sql.DB) *BasinRepository {
	return &BasinRepository{db: db}
}

// Insert stores a basin unit
func (r *BasinRepository) Insert(ctx context.Context, u *models.BasinUnit) error {
	blob, _, err := encodeGeom(u.Geometry)
	if err != nil {
		return fmt.Errorf("basin %s/%s: %w", u.Hierarchy, u.UnitID, err)
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO basin_units (hierarchy, unit_id, outlet_id, geom) VALUES (?, ?, ?, ?)",
		u.Hierarchy, u.UnitID, u.OutletID, blob)
	if err != nil {
		return fmt.Errorf("failed to insert basin %s/%s: %w", u.Hierarchy, u.UnitID, err)
	}
	return nil
}

func (r *BasinRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.BasinUnit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query basins: %w", err)
	}
	defer rows.Close()

	var out []*models.BasinUnit
	for rows.Next() {
		u := &models.BasinUnit{}
		var blob []byte
		if err := rows.Scan(&u.Hierarchy, &u.UnitID, &u.OutletID, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan basin: %w", err)
		}
		if u.Geometry, err = decodeGeom(blob); err != nil {
			return nil, fmt.Errorf("basin %s: %w", u.UnitID, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Unit retrieves one basin unit
func (r *BasinRepository) Unit(ctx context.Context, hierarchy, id string) (*models.BasinUnit, error) {
	units, err := r.query(ctx,
		"SELECT hierarchy, unit_id, outlet_id, geom FROM basin_units WHERE hierarchy = ? AND unit_id = ?",
		hierarchy, id)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("basin %s/%s: %w", hierarchy, id, ErrNotFound)
	}
	return units[0], nil
}

// Tributaries returns the units whose outlet is one of ids
func (r *BasinRepository) Tributaries(ctx context.Context, hierarchy string, ids []string) ([]*models.BasinUnit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []interface{}{hierarchy}
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return r.query(ctx,
		"SELECT hierarchy, unit_id, outlet_id, geom FROM basin_units WHERE hierarchy = ? AND outlet_id IN ("+placeholders+") ORDER BY unit_id",
		args...)
}
