package service

import "errors"

// Collaborator failure taxonomy. None of these are retried at this layer;
// the caller decides retry policy.
var (
	// ErrModelUnavailable indicates the completion service is unreachable.
	ErrModelUnavailable = errors.New("completion service unavailable")

	// ErrEmbeddingFailure indicates the embedding service failed or is unreachable.
	ErrEmbeddingFailure = errors.New("embedding service failure")

	// ErrSearchBackendUnavailable indicates the listing store is unreachable.
	ErrSearchBackendUnavailable = errors.New("search backend unavailable")
)
