package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotRunnable is returned when a run is requested for a job that
	// is already running.
	ErrJobNotRunnable = errors.New("job is already running")

	// ErrEmptyCatalog is returned when a job is started without products on
	// one of its sides.
	ErrEmptyCatalog = errors.New("catalog has no products")

	// ErrMatchNotFound is returned when a match result id does not exist.
	ErrMatchNotFound = errors.New("match result not found")

	// ErrProgressNotFound is returned when no progress has been recorded for
	// a job yet.
	ErrProgressNotFound = errors.New("no progress recorded for job")

	// ErrCacheMiss is returned when a key is not present in a cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrEmbeddingFailure is returned when the embedding service request
	// fails after retries.
	ErrEmbeddingFailure = errors.New("embedding service request failed")
)
