package watershed

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a per-point failure in the end-of-run report
type ErrorKind string

const (
	// KindReferencingMiss means no stream was found within the search radius
	KindReferencingMiss ErrorKind = "REFERENCING_MISS"
	// KindInvalidGeometry means a refinement produced an empty or invalid polygon
	KindInvalidGeometry ErrorKind = "INVALID_GEOMETRY"
	// KindExternalService means a cross-border web call failed after retries
	KindExternalService ErrorKind = "EXTERNAL_SERVICE_FAILURE"
	// KindDataIntegrity means malformed codes or a cyclic basin graph
	KindDataIntegrity ErrorKind = "DATA_INTEGRITY"
	// KindTimeout means the point ran past its time limit and was abandoned
	KindTimeout ErrorKind = "TIMEOUT"
)

// Sentinels for errors.Is. A *PointError matches the sentinel of its kind.
var (
	ErrReferencingMiss = errors.New("no stream within search radius")
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrExternalService = errors.New("external service failure")
	ErrDataIntegrity   = errors.New("data integrity error")
	ErrTimeout         = errors.New("point timed out")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindReferencingMiss:
		return ErrReferencingMiss
	case KindInvalidGeometry:
		return ErrInvalidGeometry
	case KindExternalService:
		return ErrExternalService
	case KindDataIntegrity:
		return ErrDataIntegrity
	case KindTimeout:
		return ErrTimeout
	}
	return nil
}

// PointError is a failure confined to one input point
type PointError struct {
	Kind    ErrorKind
	PointID string
	Err     error
}

// NewPointError wraps err for pointID
func NewPointError(kind ErrorKind, pointID string, err error) *PointError {
	return &PointError{Kind: kind, PointID: pointID, Err: err}
}

// Error implements the error interface
func (e *PointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] point %s: %v", e.Kind, e.PointID, e.Err)
	}
	return fmt.Sprintf("[%s] point %s", e.Kind, e.PointID)
}

// Unwrap returns the underlying error
func (e *PointError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *PointError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind of err, looking through wrapping. Errors that
// carry no kind return "".
func KindOf(err error) ErrorKind {
	var pe *PointError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for _, k := range []ErrorKind{KindReferencingMiss, KindInvalidGeometry, KindExternalService, KindDataIntegrity, KindTimeout} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	return ""
}
