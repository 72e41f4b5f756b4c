package models

import "errors"

// Failure categories. Callers wrap these with context and test with errors.Is.
var (
	// ErrSourceUnavailable covers network errors and timeouts talking to a
	// live portal. Recovered by serving the previous cache.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrParseFailure means one raw item could not be normalized. Only that
	// item is dropped.
	ErrParseFailure = errors.New("parse failure")

	// ErrCacheCorrupt means a persisted cache blob could not be decoded. The
	// cache is treated as empty.
	ErrCacheCorrupt = errors.New("cache corrupt")

	// ErrCriteriaInvalid is the only failure surfaced to API callers.
	ErrCriteriaInvalid = errors.New("invalid criteria")
)
