package chat

import "errors"

var (
	ErrEmptyMessage = errors.New("message is empty")
	// ErrUpstream wraps embedding and LLM provider failures. Callers may retry.
	ErrUpstream = errors.New("upstream provider failed")
	// ErrNoRelevantContent means the index holds nothing to search.
	ErrNoRelevantContent = errors.New("no relevant content")
)
