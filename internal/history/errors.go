package history

import "errors"

var (
	// ErrNotFound covers missing conversations and messages.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller does not own the parent conversation.
	ErrForbidden = errors.New("forbidden")
)
