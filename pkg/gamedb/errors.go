package gamedb

import "errors"

// Store errors. Callers wrap these with context via fmt.Errorf("...: %w", err)
// and test with errors.Is.
var (
	ErrNotFound         = errors.New("object not found")
	ErrCycleViolation   = errors.New("move would create a containment cycle")
	ErrPermissionDenied = errors.New("permission denied")
	ErrBadRequest       = errors.New("malformed request")
)
