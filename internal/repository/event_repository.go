package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/fwa-watersheds-go/internal/database"
	"github.com/jengzang/fwa-watersheds-go/internal/models"
)

// EventRepository stores referenced points. A point holds one event per
// stream candidate it was matched to, ordered by rank.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `point_id, rank, linear_feature_id, blue_line_key, downstream_route_measure,
	stream_measure, wscode, localcode, distance_to_stream, waterbody_key, on_waterbody`

func insertEvent(ctx context.Context, tx *sql.Tx, e *models.Event) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.PointID,
		e.Rank,
		e.LinearFeatureID,
		e.BlueLineKey,
		e.DownstreamRouteMeasure,
		e.StreamMeasure,
		e.WSCode.Path(),
		e.LocalCode.Path(),
		e.DistanceToStream,
		e.WaterbodyKey,
		e.OnWaterbody,
	)
	if err != nil {
		return fmt.Errorf("failed to save event %s/%d: %w", e.PointID, e.Rank, err)
	}
	return nil
}

// Save stores e as the only event of its point
func (r *EventRepository) Save(ctx context.Context, e *models.Event) error {
	return r.ReplacePoint(ctx, e.PointID, []*models.Event{e})
}

// ReplacePoint discards the events of pointID and stores events, ranked in
// the order given
func (r *EventRepository) ReplacePoint(ctx context.Context, pointID string, events []*models.Event) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE point_id = ?", pointID); err != nil {
			return fmt.Errorf("failed to clear events for %s: %w", pointID, err)
		}
		for i, e := range events {
			e.PointID = pointID
			e.Rank = i
			if err := insertEvent(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	e := &models.Event{}
	var ws, local string
	err := row.Scan(
		&e.PointID,
		&e.Rank,
		&e.LinearFeatureID,
		&e.BlueLineKey,
		&e.DownstreamRouteMeasure,
		&e.StreamMeasure,
		&ws,
		&local,
		&e.DistanceToStream,
		&e.WaterbodyKey,
		&e.OnWaterbody,
	)
	if err != nil {
		return nil, err
	}
	if e.WSCode, e.LocalCode, err = parseCodes(ws, local); err != nil {
		return nil, fmt.Errorf("event %s: %w", e.PointID, err)
	}
	return e, nil
}

// Get retrieves the primary event of a point
func (r *EventRepository) Get(ctx context.Context, pointID string) (*models.Event, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE point_id = ? AND rank = 0", pointID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s: %w", pointID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// List retrieves every event of a point by rank
func (r *EventRepository) List(ctx context.Context, pointID string) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+eventColumns+" FROM events WHERE point_id = ? ORDER BY rank", pointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
