package store

import (
	"fmt"
	"strings"
)

// RetrievalError reports a backend search call that failed outright. Zero
// matches is not an error and returns an empty slice instead.
type RetrievalError struct {
	Index string
	Op    string
	Cause error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s on index %q: %v", e.Op, e.Index, e.Cause)
}

func (e *RetrievalError) Unwrap() error { return e.Cause }

// FailedWrite records one document that could not be stored in a batch.
type FailedWrite struct {
	Position int // position in the submitted batch
	Cause    error
}

// WriteError reports a partial or full batch write failure. Callers may
// retry just the failed subset.
type WriteError struct {
	Index  string
	Failed []FailedWrite
	// Cause is set when the batch failed as a whole (e.g. the backend
	// rejected the write) rather than per document.
	Cause error
}

func (e *WriteError) Unwrap() error { return e.Cause }

func (e *WriteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("write to index %q: %v", e.Index, e.Cause)
	}
	if len(e.Failed) == 1 {
		return fmt.Sprintf("write to index %q: document %d: %v", e.Index, e.Failed[0].Position, e.Failed[0].Cause)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "write to index %q: %d documents failed:", e.Index, len(e.Failed))
	for _, f := range e.Failed {
		fmt.Fprintf(&b, " [%d: %v]", f.Position, f.Cause)
	}
	return b.String()
}

// ContentKeyError reports a content key that does not match the key the
// index was created with. This is a precondition violation and fails fast
// rather than silently returning empty results.
type ContentKeyError struct {
	Index string
	Got   string
	Want  string
}

func (e *ContentKeyError) Error() string {
	return fmt.Sprintf("index %q uses content key %q, got %q", e.Index, e.Want, e.Got)
}
