package memdb

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrCapacity indicates the approximate index reached its configured
	// max elements. Callers must prune before inserting again.
	ErrCapacity = errors.New("memdb: index capacity exceeded")

	// ErrNotFound indicates a lookup or delete named an unknown episode id.
	ErrNotFound = errors.New("memdb: episode not found")

	// ErrInvalidArgument indicates a structurally invalid request, such as
	// a non-positive dimension or a negative top-k.
	ErrInvalidArgument = errors.New("memdb: invalid argument")

	// ErrCorruptFile indicates a persistence payload that could not be
	// decoded. Nothing is partially loaded.
	ErrCorruptFile = errors.New("memdb: corrupt file")

	// ErrIncompatibleVersion indicates a persistence payload written by a
	// newer, unreadable format version.
	ErrIncompatibleVersion = errors.New("memdb: incompatible file version")
)

// DimensionError reports an embedding whose length does not match the
// store's configured dimension. Vectors are never truncated or padded.
type DimensionError struct {
	Expected int
	Got      int
}

// Error implements error.
func (e *DimensionError) Error() string {
	return fmt.Sprintf("memdb: embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
