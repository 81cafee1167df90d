package centroid

import "errors"

var (
	// ErrInsufficientInput is returned when no embeddings are available.
	// Non-retryable until more faces are labeled.
	ErrInsufficientInput = errors.New("insufficient input embeddings")

	// ErrDegenerateVector is returned when aggregation collapses to a zero
	// vector. Can only happen with contradictory, cancelling inputs.
	ErrDegenerateVector = errors.New("aggregated vector has zero norm")
)
