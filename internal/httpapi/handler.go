// Package httpapi exposes chat, session history, uploads and the document
// catalog as JSON over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mike-a-ellis/docqa/internal/catalog"
	"github.com/mike-a-ellis/docqa/internal/chat"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/session"
	"github.com/mike-a-ellis/docqa/internal/source"
)

// DefaultMaxUpload bounds the size of an uploaded document.
const DefaultMaxUpload = 32 << 20

// Asker answers chat messages. *chat.Service satisfies it.
type Asker interface {
	Ask(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Ingester adds and removes documents. *indexer.Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, doc *source.Document) (*indexer.DocumentResult, error)
	Remove(ctx context.Context, name string) (int, error)
}

// Config holds the handler dependencies.
type Config struct {
	Chat     Asker
	Ingester Ingester
	Sessions session.Store
	Catalog  catalog.Catalog
	// Health is mounted at GET /health when set.
	Health http.Handler
	// UploadDir keeps a copy of every uploaded file when set.
	UploadDir string
	MaxUpload int64
	Logger    *slog.Logger
}

type handler struct {
	cfg    Config
	logger *slog.Logger
}

// NewHandler returns a mux serving every route.
func NewHandler(cfg Config) http.Handler {
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = DefaultMaxUpload
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{cfg: cfg, logger: logger.With("component", "httpapi")}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", h.chat)
	mux.HandleFunc("GET /chat/history", h.listSessions)
	mux.HandleFunc("GET /chat/history/{id}", h.getSession)
	mux.HandleFunc("DELETE /chat/history/{id}", h.deleteSession)
	mux.HandleFunc("GET /chat/history/{id}/export", h.exportSession)
	mux.HandleFunc("POST /upload", h.upload)
	mux.HandleFunc("GET /documents", h.listDocuments)
	mux.HandleFunc("DELETE /documents/{name...}", h.deleteDocument)
	mux.HandleFunc("GET /training-history", h.trainingHistory)
	if cfg.Health != nil {
		mux.Handle("GET /health", cfg.Health)
	}
	return mux
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message   string        `json:"message"`
	Messages  []chatMessage `json:"messages"`
	DocName   string        `json:"doc_name"`
	SessionID string        `json:"session_id"`
}

type chatResponse struct {
	Reply       string   `json:"reply"`
	SessionID   string   `json:"session_id"`
	Category    string   `json:"category"`
	ContextUsed []string `json:"context_used,omitempty"`
	NoContent   bool     `json:"no_content,omitempty"`
}

type uploadResponse struct {
	Message  string  `json:"message"`
	Filename string  `json:"filename"`
	Chunks   int     `json:"chunks"`
	Duration float64 `json:"duration"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// parseChat accepts ?message= or a JSON body with either message or a
// messages array whose last entry is the question.
func parseChat(r *http.Request) (chat.Request, error) {
	q := r.URL.Query()
	if msg := q.Get("message"); msg != "" {
		return chat.Request{Message: msg, DocName: q.Get("doc_name"), SessionID: q.Get("session_id")}, nil
	}

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return chat.Request{}, fmt.Errorf("%w: invalid JSON body: %v", ErrBadRequest, err)
	}
	req := chat.Request{DocName: body.DocName, SessionID: body.SessionID}
	switch {
	case body.Message != "":
		req.Message = body.Message
	case len(body.Messages) > 0:
		req.Message = body.Messages[len(body.Messages)-1].Content
	default:
		return chat.Request{}, fmt.Errorf("%w: expected message or messages", ErrBadRequest)
	}
	return req, nil
}

func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChat(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.cfg.Chat.Ask(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Reply:       resp.Reply,
		SessionID:   resp.SessionID,
		Category:    resp.Category.String(),
		ContextUsed: resp.ContextUsed,
		NoContent:   resp.NoContent,
	})
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.cfg.Sessions.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.cfg.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

func (h *handler) exportSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, err := h.cfg.Sessions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="chat_session_%s.json"`, id))
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: missing file: %w", ErrBadRequest, err))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		h.writeError(w, fmt.Errorf("%w: no file name provided", ErrBadRequest))
		return
	}
	if !source.Supported(name) {
		h.writeError(w, fmt.Errorf("%w: %s (only .txt and .md are accepted)", source.ErrUnsupportedType, name))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: read upload: %w", ErrBadRequest, err))
		return
	}
	doc, err := source.FromBytes(name, catalog.SourceUpload, data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.cfg.Ingester.Ingest(r.Context(), doc)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Only indexed documents are kept on disk.
	if h.cfg.UploadDir != "" {
		if err := os.WriteFile(filepath.Join(h.cfg.UploadDir, name), data, 0o644); err != nil {
			h.logger.Warn("Failed to save uploaded file", "name", name, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:  "File uploaded and trained successfully",
		Filename: name,
		Chunks:   res.Chunks,
		Duration: math.Round(time.Since(start).Seconds()*100) / 100,
	})
}

func (h *handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.cfg.Catalog.ListDocuments(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	removed, err := h.cfg.Ingester.Remove(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.cfg.UploadDir != "" {
		err := os.Remove(filepath.Join(h.cfg.UploadDir, filepath.Base(name)))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			h.logger.Warn("Failed to remove uploaded file", "name", name, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Document %s deleted successfully", name),
		"removed": removed,
	})
}

func (h *handler) trainingHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := h.cfg.Catalog.ListRuns(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "status", status, "error", err)
	} else {
		h.logger.Debug("Request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
