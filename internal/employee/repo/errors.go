package repo

import "errors"

// Errors shared by every storage backend. The service layer translates them
// into its own taxonomy.
var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicateEmail  = errors.New("email address already stored")
	ErrVersionConflict = errors.New("version conflict")
)
