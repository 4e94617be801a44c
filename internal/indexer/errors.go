package indexer

import "errors"

var (
	ErrEmptyDocument    = errors.New("document has no text")
	ErrDocumentNotFound = errors.New("document not found")
	ErrMissingComponent = errors.New("pipeline component is required")
)
