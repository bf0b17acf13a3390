package models

// Run is one batch delineation over a set of input points
type Run struct {
	ID string `json:"id" db:"id"`

	// Status
	Status   string  `json:"status" db:"status"` // pending, running, completed, failed
	Progress float64 `json:"progress_percent" db:"progress"`

	// Execution info
	TotalPoints     int   `json:"total_points" db:"total"`
	ProcessedPoints int   `json:"processed_points" db:"processed"`
	FailedPoints    int   `json:"failed_points" db:"failed"`
	UnmatchedPoints int   `json:"unmatched_points" db:"unmatched"`
	CreatedAt       int64 `json:"created_at" db:"created_at"`           // Unix timestamp
	StartTime       int64 `json:"start_time,omitempty" db:"start_time"` // Unix timestamp
	EndTime         int64 `json:"end_time,omitempty" db:"end_time"`     // Unix timestamp

	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`
}

// RunStatus constants
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// PointOutcome is the end state of one point within a run
type PointOutcome struct {
	RunID     string   `json:"run_id" db:"run_id"`
	PointID   string   `json:"point_id" db:"point_id"`
	Status    string   `json:"status" db:"status"`
	Method    string   `json:"method,omitempty" db:"method"`
	Sources   []string `json:"sources,omitempty" db:"sources"` // fragment sources present at the end
	Area      float64  `json:"area,omitempty" db:"area"`       // summed fragment area, m²
	ErrorKind string   `json:"error_kind,omitempty" db:"error_kind"`
	Message   string   `json:"message,omitempty" db:"message"`
}

// OutcomeStatus constants
const (
	OutcomeSuccess   = "success"   // every stage completed as selected
	OutcomeFallback  = "fallback"  // refinement failed, unrefined polygon kept
	OutcomeUnmatched = "unmatched" // no stream in range and no external match
	OutcomeFailed    = "failed"
)
