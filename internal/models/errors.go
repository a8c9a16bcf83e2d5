package models

import "errors"

// Coordinator error taxonomy. Wrap with fmt.Errorf("...: %w", ErrX) and match with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrMessagingDisabled = errors.New("messaging is disabled for this lecture")
	ErrLectureEnded      = errors.New("lecture has ended")
)
