package embedding

import "errors"

var (
	ErrTimeout       = errors.New("embedding request timed out")
	ErrProvider      = errors.New("embedding provider failed")
	ErrEmptyResponse = errors.New("embedding provider returned no vectors")
)
