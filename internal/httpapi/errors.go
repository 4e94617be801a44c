package httpapi

import (
	"errors"
	"net/http"

	"github.com/mike-a-ellis/docqa/internal/catalog"
	"github.com/mike-a-ellis/docqa/internal/chat"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/llm"
	"github.com/mike-a-ellis/docqa/internal/session"
	"github.com/mike-a-ellis/docqa/internal/source"
)

var ErrBadRequest = errors.New("bad request")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, indexer.ErrEmptyDocument),
		errors.Is(err, llm.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, indexer.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, source.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, chat.ErrUpstream),
		errors.Is(err, embedding.ErrProvider),
		errors.Is(err, embedding.ErrTimeout),
		errors.Is(err, embedding.ErrEmptyResponse),
		errors.Is(err, llm.ErrProvider),
		errors.Is(err, llm.ErrTimeout),
		errors.Is(err, llm.ErrEmptyResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
