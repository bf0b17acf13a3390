package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/wscode"
)

// StreamRepository handles the stream network and waterbody tables
type StreamRepository struct {
	db *sql.DB
}

// NewStreamRepository creates a new stream repository
func NewStreamRepository(db *sql.DB) *StreamRepository {
	return &StreamRepository{db: db}
}

const streamColumns = `linear_feature_id, blue_line_key, downstream_route_measure, length_metre,
	wscode, localcode, waterbody_key, edge_type, gnis_name, geom`

// Insert stores a stream segment
func (r *StreamRepository) Insert(ctx context.Context, s *models.StreamSegment) error {
	blob, b, err := encodeGeom(s.Geometry)
	if err != nil {
		return fmt.Errorf("stream %d: %w", s.LinearFeatureID, err)
	}

	query := `
		INSERT OR REPLACE INTO stream_networks (
			linear_feature_id, blue_line_key, downstream_route_measure, length_metre,
			wscode, localcode, waterbody_key, edge_type, gnis_name, geom,
			min_x, min_y, max_x, max_y
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.LinearFeatureID,
		s.BlueLineKey,
		s.DownstreamRouteMeasure,
		s.Length,
		s.WSCode.Path(),
		s.LocalCode.Path(),
		s.WaterbodyKey,
		s.EdgeType,
		s.GNISName,
		blob,
		b.MinX, b.MinY, b.MaxX, b.MaxY,
	)
	if err != nil {
		return fmt.Errorf("failed to insert stream %d: %w", s.LinearFeatureID, err)
	}
	return nil
}

func scanStream(rows interface{ Scan(...interface{}) error }) (*models.StreamSegment, error) {
	s := &models.StreamSegment{}
	var ws, local string
	var blob []byte
	err := rows.Scan(
		&s.LinearFeatureID,
		&s.BlueLineKey,
		&s.DownstreamRouteMeasure,
		&s.Length,
		&ws,
		&local,
		&s.WaterbodyKey,
		&s.EdgeType,
		&s.GNISName,
		&blob,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan stream: %w", err)
	}
	if s.WSCode, s.LocalCode, err = parseCodes(ws, local); err != nil {
		return nil, fmt.Errorf("stream %d: %w", s.LinearFeatureID, err)
	}
	if s.Geometry, err = decodeGeom(blob); err != nil {
		return nil, fmt.Errorf("stream %d: %w", s.LinearFeatureID, err)
	}
	return s, nil
}

func (r *StreamRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.StreamSegment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query streams: %w", err)
	}
	defer rows.Close()

	var out []*models.StreamSegment
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Nearest returns the segments within radius of p, closest first
func (r *StreamRepository) Nearest(ctx context.Context, p spatial.XY, radius float64) ([]models.StreamCandidate, error) {
	box := spatial.Bounds{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y}.Expand(radius)
	segs, err := r.query(ctx,
		"SELECT "+streamColumns+" FROM stream_networks WHERE "+bboxFilter,
		bboxArgs(box)...)
	if err != nil {
		return nil, err
	}

	var out []models.StreamCandidate
	for _, s := range segs {
		line := spatial.MergeParts(spatial.LineParts(s.Geometry))
		loc, err := spatial.Locate(line, p)
		if err != nil {
			continue
		}
		if loc.Distance > radius {
			continue
		}
		out = append(out, models.StreamCandidate{
			Segment:  s,
			Distance: loc.Distance,
			Measure:  s.DownstreamRouteMeasure + loc.Fraction*s.Length,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Segment.LinearFeatureID < out[j].Segment.LinearFeatureID
	})
	return out, nil
}

// LocalCodeAt returns the local code of the segment of a blue line that
// contains measure
func (r *StreamRepository) LocalCodeAt(ctx context.Context, blueLineKey int64, measure float64) (wscode.Code, error) {
	query := `
		SELECT localcode FROM stream_networks
		WHERE blue_line_key = ? AND downstream_route_measure - 0.0001 <= ?
		ORDER BY downstream_route_measure DESC
		LIMIT 1
	`
	var local string
	err := r.db.QueryRowContext(ctx, query, blueLineKey, measure).Scan(&local)
	if err == sql.ErrNoRows {
		return wscode.Code{}, fmt.Errorf("no stream on blue line %d at measure %v: %w", blueLineKey, measure, ErrNotFound)
	}
	if err != nil {
		return wscode.Code{}, fmt.Errorf("failed to get local code: %w", err)
	}
	return wscode.Parse(local)
}

// LocalReach returns the segments of a blue line sharing the given codes,
// ordered downstream to upstream
func (r *StreamRepository) LocalReach(ctx context.Context, blueLineKey int64, ws, local wscode.Code) ([]*models.StreamSegment, error) {
	return r.query(ctx,
		"SELECT "+streamColumns+` FROM stream_networks
		WHERE blue_line_key = ? AND wscode = ? AND localcode = ?
		ORDER BY downstream_route_measure`,
		blueLineKey, ws.Path(), local.Path())
}

// Upstream returns every segment in the tree below ws, for cross border
// detection and reporting
func (r *StreamRepository) Upstream(ctx context.Context, ws wscode.Code) ([]*models.StreamSegment, error) {
	return r.query(ctx,
		"SELECT "+streamColumns+" FROM stream_networks WHERE "+descendantFilter+" ORDER BY wscode, downstream_route_measure",
		descendantArgs(ws)...)
}

// InsertWaterbody stores a waterbody
func (r *StreamRepository) InsertWaterbody(ctx context.Context, w *models.Waterbody) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO waterbodies (waterbody_key, waterbody_type, feature_code, gnis_name) VALUES (?, ?, ?, ?)",
		w.WaterbodyKey, w.Type, w.FeatureCode, w.GNISName)
	if err != nil {
		return fmt.Errorf("failed to insert waterbody %d: %w", w.WaterbodyKey, err)
	}
	return nil
}

// Waterbody retrieves a waterbody by key. A zero key returns nil.
func (r *StreamRepository) Waterbody(ctx context.Context, key int64) (*models.Waterbody, error) {
	if key == 0 {
		return nil, nil
	}
	w := &models.Waterbody{}
	err := r.db.QueryRowContext(ctx,
		"SELECT waterbody_key, waterbody_type, feature_code, gnis_name FROM waterbodies WHERE waterbody_key = ?",
		key).Scan(&w.WaterbodyKey, &w.Type, &w.FeatureCode, &w.GNISName)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("waterbody %d: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waterbody: %w", err)
	}
	return w, nil
}
