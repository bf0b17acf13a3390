package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
)

// RunRepository handles batch runs and their per point outcomes
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create creates a new run
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().Unix()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO runs (id, status, total, created_at) VALUES (?, ?, ?, ?)",
		run.ID, run.Status, run.TotalPoints, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT id, status, progress, total, processed, failed, unmatched,
			created_at, start_time, end_time, error_message
		FROM runs WHERE id = ?
	`
	run := &models.Run{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Status,
		&run.Progress,
		&run.TotalPoints,
		&run.ProcessedPoints,
		&run.FailedPoints,
		&run.UnmatchedPoints,
		&run.CreatedAt,
		&run.StartTime,
		&run.EndTime,
		&run.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// MarkAsRunning marks a run as running
func (r *RunRepository) MarkAsRunning(ctx context.Context, id string, total int) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, total = ?, start_time = ? WHERE id = ?",
		models.RunStatusRunning, total, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark run as running: %w", err)
	}
	return nil
}

// UpdateProgress updates the counters of a run
func (r *RunRepository) UpdateProgress(ctx context.Context, id string, processed, failed, unmatched int, progress float64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE runs SET processed = ?, failed = ?, unmatched = ?, progress = ? WHERE id = ?",
		processed, failed, unmatched, progress, id)
	if err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}
	return nil
}

// MarkAsCompleted marks a run as completed
func (r *RunRepository) MarkAsCompleted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, progress = 100, end_time = ? WHERE id = ?",
		models.RunStatusCompleted, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark run as completed: %w", err)
	}
	return nil
}

// MarkAsFailed marks a run as failed with an error message
func (r *RunRepository) MarkAsFailed(ctx context.Context, id string, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, end_time = ?, error_message = ? WHERE id = ?",
		models.RunStatusFailed, time.Now().Unix(), errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to mark run as failed: %w", err)
	}
	return nil
}

// SaveOutcome records the outcome of one point
func (r *RunRepository) SaveOutcome(ctx context.Context, o *models.PointOutcome) error {
	query := `
		INSERT OR REPLACE INTO point_outcomes (run_id, point_id, status, method, sources, area, error_kind, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		o.RunID, o.PointID, o.Status, o.Method, strings.Join(o.Sources, ","), o.Area, o.ErrorKind, o.Message)
	if err != nil {
		return fmt.Errorf("failed to save outcome for %s: %w", o.PointID, err)
	}
	return nil
}

// Outcomes lists the point outcomes of a run ordered by point id
func (r *RunRepository) Outcomes(ctx context.Context, runID string) ([]*models.PointOutcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, point_id, status, method, sources, area, error_kind, message
		FROM point_outcomes WHERE run_id = ? ORDER BY point_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var out []*models.PointOutcome
	for rows.Next() {
		o := &models.PointOutcome{}
		var sources string
		if err := rows.Scan(&o.RunID, &o.PointID, &o.Status, &o.Method, &sources, &o.Area, &o.ErrorKind, &o.Message); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if sources != "" {
			o.Sources = strings.Split(sources, ",")
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
