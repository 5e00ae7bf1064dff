package rag

import "errors"

// Error taxonomy for the pipeline. Stages wrap these sentinels with
// fmt.Errorf("%w: ...") so callers can branch with errors.Is while still
// seeing provider detail in the message.
var (
	// ErrConfiguration indicates bad chunk/template/provider parameters.
	// Fatal, never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmbedding indicates the embedding model was unreachable or
	// returned malformed output. The whole embed call fails; callers
	// retry at call granularity.
	ErrEmbedding = errors.New("embedding failed")

	// ErrVectorStore indicates a namespace or query failure in the
	// vector store. Transient network errors are retried with backoff
	// before this surfaces.
	ErrVectorStore = errors.New("vector store failure")

	// ErrAuthentication indicates the generation provider rejected the
	// credential. Never retried.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRateLimited indicates the generation provider throttled the
	// request. Retried with backoff up to a bound.
	ErrRateLimited = errors.New("rate limited")

	// ErrProviderUnavailable indicates the generation provider is down
	// or unreachable. Retried with backoff up to a bound.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrInvalidRequest indicates the generation provider rejected the
	// request shape. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
