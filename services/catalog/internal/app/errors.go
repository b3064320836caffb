package app

import "errors"

var (
	ErrUserExists    = errors.New("user already exists")
	ErrMovieExists   = errors.New("movie already exists")
	ErrUserNotFound  = errors.New("user not found")
	ErrMovieNotFound = errors.New("movie not found")

	// ErrInvalidReview is returned when a review names a user or movie that does not exist.
	ErrInvalidReview = errors.New("review references an unknown user or movie")

	// ErrMetadataNotFound is shown as-is by the add-movie preview.
	ErrMetadataNotFound = errors.New("Movie not found!")
)

// UserError pairs a sentinel with the message shown to end users.
// errors.Is matches the sentinel; Error returns the message.
type UserError struct {
	Kind    error
	Message string
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Kind }
