package document

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed        = errors.New("document: malformed")
	ErrIncomplete       = errors.New("document: incomplete")
	ErrListenerNotFound = errors.New("document: listener not found")
	ErrUserExists       = errors.New("document: user already exists")
	ErrUserNotFound     = errors.New("document: user not found")
	ErrInvalidUser      = errors.New("document: invalid user")
	ErrInvalidField     = errors.New("document: invalid field")
)

// MalformedError names the offending field of a document that failed to load.
type MalformedError struct {
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed config: %s", e.Reason)
	}
	return fmt.Sprintf("malformed config: %s: %s", e.Field, e.Reason)
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func malformed(field, format string, args ...any) error {
	return &MalformedError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IncompleteError explains why a loaded document cannot be written back and served.
type IncompleteError struct {
	Reason string
}

func (e *IncompleteError) Error() string { return "incomplete config: " + e.Reason }

func (e *IncompleteError) Is(target error) bool { return target == ErrIncomplete }
