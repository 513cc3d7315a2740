package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPayload signals a vector-store payload that fails its collection schema.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrProviderUnavailable signals a transient provider outage (5xx, timeout).
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrMalformedOutput signals LLM output that does not match the requested schema.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrMissingUpstream signals that a dependency produced no output for the entity.
	ErrMissingUpstream = errors.New("missing upstream output")
	// ErrInvalidTransition signals a non-monotonic job status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)
