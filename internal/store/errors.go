package store

import "errors"

// Store errors for the JSON document stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPartialDocument is returned when a document is still empty or
	// malformed after all read retries. Writers replace documents via
	// rename, so this indicates a reader raced the create-rename window
	// repeatedly or the file is genuinely corrupt.
	ErrPartialDocument = errors.New("partial or malformed document after retries")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
