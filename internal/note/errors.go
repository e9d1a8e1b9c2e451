package note

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both a missing record and a soft-deleted one;
	// from the client's point of view the note is gone either way.
	ErrNotFound = errors.New("note not found")
)

// ConflictError reports a rejected conditional write. ServerVersion carries
// the version currently stored so the caller can re-fetch and resolve.
type ConflictError struct {
	ServerVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: server is at version %d", e.ServerVersion)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
