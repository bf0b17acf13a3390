package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/jengzang/fwa-watersheds-go/internal/database"
	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
)

// FragmentRepository stores the assembled watershed of each point. All
// writes for a point go through a single transaction so readers see either
// the state before or the state after a stage, never a mix. Point ids are
// global: a later run with the same id replaces the earlier watershed.
type FragmentRepository struct {
	db *sql.DB
}

// NewFragmentRepository creates a new fragment repository
func NewFragmentRepository(db *sql.DB) *FragmentRepository {
	return &FragmentRepository{db: db}
}

func insertFragment(ctx context.Context, tx *sql.Tx, f *models.Fragment) error {
	if f.Geometry.IsEmpty() {
		return fmt.Errorf("fragment %s/%s: %w", f.PointID, f.Source, spatial.ErrEmptyGeometry)
	}
	f.Area = f.Geometry.Area()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO fragments (point_id, source, watershed_feature_id, area, geom) VALUES (?, ?, ?, ?, ?)",
		f.PointID, f.Source, f.WatershedFeatureID, f.Area, f.Geometry.AsBinary())
	if err != nil {
		return fmt.Errorf("failed to insert fragment for %s: %w", f.PointID, err)
	}
	if f.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// ReplacePoint discards every fragment of pointID and stores frags
func (r *FragmentRepository) ReplacePoint(ctx context.Context, pointID string, frags []*models.Fragment) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM fragments WHERE point_id = ?", pointID); err != nil {
			return fmt.Errorf("failed to clear fragments for %s: %w", pointID, err)
		}
		for _, f := range frags {
			f.PointID = pointID
			if err := insertFragment(ctx, tx, f); err != nil {
				return err
			}
		}
		return nil
	})
}

// Add appends fragments to a point
func (r *FragmentRepository) Add(ctx context.Context, frags ...*models.Fragment) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		for _, f := range frags {
			if err := insertFragment(ctx, tx, f); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceSource swaps the fragments of pointID tagged oldSource for f in one
// transaction
func (r *FragmentRepository) ReplaceSource(ctx context.Context, pointID, oldSource string, f *models.Fragment) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM fragments WHERE point_id = ? AND source = ?", pointID, oldSource)
		if err != nil {
			return fmt.Errorf("failed to delete %s fragment for %s: %w", oldSource, pointID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("no %s fragment for %s: %w", oldSource, pointID, ErrNotFound)
		}
		f.PointID = pointID
		return insertFragment(ctx, tx, f)
	})
}

// ListByPoint returns the fragments of a point in insertion order
func (r *FragmentRepository) ListByPoint(ctx context.Context, pointID string) ([]*models.Fragment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, point_id, source, watershed_feature_id, area, geom FROM fragments WHERE point_id = ? ORDER BY id",
		pointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer rows.Close()

	var out []*models.Fragment
	for rows.Next() {
		f := &models.Fragment{}
		var blob []byte
		if err := rows.Scan(&f.ID, &f.PointID, &f.Source, &f.WatershedFeatureID, &f.Area, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan fragment: %w", err)
		}
		if f.Geometry, err = decodeGeom(blob); err != nil {
			return nil, fmt.Errorf("fragment %d: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Dissolved unions every fragment of a point into one geometry
func (r *FragmentRepository) Dissolved(ctx context.Context, pointID string) (geom.Geometry, error) {
	frags, err := r.ListByPoint(ctx, pointID)
	if err != nil {
		return geom.Geometry{}, err
	}
	if len(frags) == 0 {
		return geom.Geometry{}, fmt.Errorf("fragments for %s: %w", pointID, ErrNotFound)
	}
	gs := make([]geom.Geometry, len(frags))
	for i, f := range frags {
		gs[i] = f.Geometry
	}
	return spatial.UnionAll(gs)
}

// DeletePoint removes every fragment of a point
func (r *FragmentRepository) DeletePoint(ctx context.Context, pointID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM fragments WHERE point_id = ?", pointID); err != nil {
		return fmt.Errorf("failed to delete fragments for %s: %w", pointID, err)
	}
	return nil
}
