package convmem

import (
	"errors"
	"fmt"

	"github.com/youssefsiam38/convmem/compaction"
	"github.com/youssefsiam38/convmem/disambiguation"
	"github.com/youssefsiam38/convmem/generation"
	"github.com/youssefsiam38/convmem/response"
	"github.com/youssefsiam38/convmem/storage"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the pipeline configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyQuery is returned when a turn is started without a query
	ErrEmptyQuery = errors.New("query is empty")

	// ErrGeneration classifies failures of the generation service, whichever
	// stage they happened in
	ErrGeneration = errors.New("generation failed")

	// ErrStorage classifies failures of the store, including range conflicts
	ErrStorage = errors.New("storage operation failed")
)

// PipelineError represents a failed pipeline stage with additional context
type PipelineError struct {
	Stage     string         // Stage or operation that failed
	Err       error          // Underlying error
	SessionID string         // Session ID if applicable
	Context   map[string]any // Additional context

	kind error // ErrGeneration, ErrStorage or nil
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s (session=%s): %v", e.Stage, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches ErrGeneration and ErrStorage by classification of the cause.
func (e *PipelineError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// WithContext adds additional context to the error
func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewPipelineError creates a new PipelineError
func NewPipelineError(stage string, err error) *PipelineError {
	return &PipelineError{
		Stage: stage,
		Err:   err,
		kind:  classify(err),
	}
}

// NewPipelineErrorWithSession creates a new PipelineError with session ID
func NewPipelineErrorWithSession(stage Stage, sessionID string, err error) *PipelineError {
	e := NewPipelineError(string(stage), err)
	e.SessionID = sessionID
	return e
}

func classify(err error) error {
	switch {
	case errors.Is(err, generation.ErrGenerationFailed),
		errors.Is(err, compaction.ErrSummarizationFailed),
		errors.Is(err, disambiguation.ErrAnalysisFailed),
		errors.Is(err, response.ErrResponseFailed):
		return ErrGeneration
	case errors.Is(err, storage.ErrStorage),
		errors.Is(err, storage.ErrRangeConflict),
		errors.Is(err, storage.ErrInvalidMessage):
		return ErrStorage
	}
	return nil
}
