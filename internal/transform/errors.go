package transform

import "errors"

var (
	// ErrNotFound reports that the source image does not exist.
	ErrNotFound = errors.New("source image not found")
	// ErrTimeout reports that a caller gave up waiting for a transform.
	ErrTimeout = errors.New("transform timed out")
)
