package model

import "errors"

// Error kinds of the query pipeline. They are wrapped together with their cause,
// so errors.Is matches both the kind and the original error.
var (
	// ErrEmbeddingUnavailable is returned when the embedding model could not produce vectors.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrDimensionMismatch is returned for vectors that do not match the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrRetrievalFailed wraps errors of the vector index during a query.
	ErrRetrievalFailed = errors.New("retrieval failed")
	// ErrSynthesisFailed is returned when the reasoning model could not be reached.
	ErrSynthesisFailed = errors.New("synthesis failed")
	// ErrExtractionFailed is logged when entity extraction fails. It never aborts a query.
	ErrExtractionFailed = errors.New("extraction failed")
)
