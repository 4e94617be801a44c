package llm

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid llm request")
	ErrTimeout        = errors.New("llm request timed out")
	ErrProvider       = errors.New("llm provider failed")
	ErrEmptyResponse  = errors.New("llm returned no choices")
)
