package domain

import "errors"

var (
	ErrEmptyBatch    = errors.New("batch contains no pieces")
	ErrNoArtifacts   = errors.New("no image generated")
	ErrBatchNotFound = errors.New("batch not found")

	// ErrAmbiguousCompletion marks a job whose event channel closed before the
	// completion sentinel arrived. The outcome is unknown, not failed: callers
	// corroborate via the history endpoint before trusting either way.
	ErrAmbiguousCompletion = errors.New("event channel closed before completion was confirmed")
)
