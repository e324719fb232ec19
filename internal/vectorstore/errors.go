package vectorstore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the requested backend is not linked into this binary.
	ErrUnavailable = errors.New("vector store backend unavailable")

	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
)

// StatusError is returned by HTTP backends for a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
}
