package models

import "errors"

var (
	// ErrInvalidInput is returned for empty session ids, messages or queries.
	ErrInvalidInput = errors.New("invalid input")
	// ErrIndexUnavailable means a single index could not answer (missing, empty, timed out).
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrRetrievalUnavailable means both indices were unavailable for the same query.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrStoreUnavailable means the session history store failed to read or write.
	ErrStoreUnavailable = errors.New("history store unavailable")
	// ErrAgentFailure means the language model failed or returned a malformed response.
	ErrAgentFailure = errors.New("agent failure")
	// ErrDocumentNotFound is returned by document stores for unknown ids.
	ErrDocumentNotFound = errors.New("document not found")
)
