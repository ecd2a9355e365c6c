package domain

import "errors"

var (
	// ErrGenerationUnavailable means a text-generation call failed or timed out.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrRetrievalUnavailable means a retrieval call failed or timed out.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrMalformedState means a stage ran without a field it requires.
	ErrMalformedState = errors.New("malformed state")
)
