// Package chat answers user messages from the indexed documents and keeps
// the conversation in a session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/classifier"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/llm"
	"github.com/mike-a-ellis/docqa/internal/retrieval"
	"github.com/mike-a-ellis/docqa/internal/session"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// Replies that do not come from the model.
const (
	OutOfScopeReply    = "I can only answer questions based on your uploaded documents. Please ask about the content in your PDFs."
	NoDocumentsReply   = "No documents have been trained yet."
	NoRelevantReply    = "No relevant information is available in your documents for this question."
	noDocumentDataFmt  = "No data available for document: %s"
	providerErrorReply = "The answer could not be generated because a provider failed. Please try again."
)

// GreetingReplies are the canned answers to a greeting.
var GreetingReplies = []string{
	"Hello! How can I help you today?",
	"Hi there! What would you like to know from your documents?",
	"Hey! I'm here to assist you with your study materials.",
	"Greetings! Ask me anything about your uploaded documents.",
}

// Mode selects how the answer is produced.
type Mode string

const (
	// ModeSingle answers with one call over the assembled context.
	ModeSingle Mode = "single"
	// ModeTwoStep extracts facts first, then writes the answer from them.
	ModeTwoStep Mode = "two_step"
)

// Answerer is the LLM surface the service needs. *llm.Client satisfies it.
type Answerer interface {
	Answer(ctx context.Context, req llm.AnswerRequest) (*llm.AnswerResponse, error)
	ExtractFacts(ctx context.Context, req llm.ExtractionRequest) (*llm.ExtractionResponse, error)
	Synthesize(ctx context.Context, req llm.SynthesisRequest) (*llm.AnswerResponse, error)
}

// Request is one user message.
type Request struct {
	Message   string
	DocName   string // restrict retrieval to one document
	SessionID string // empty starts a new session
}

// Response is the assistant reply.
type Response struct {
	Reply       string
	SessionID   string
	Category    classifier.Category
	ContextUsed []string
	// NoContent is set when the reply explains that nothing could be retrieved.
	NoContent bool
	Model     string
}

// Service runs classify, retrieve, rank, answer and record for each message.
type Service struct {
	embedder embedding.Embedder
	index    storage.VectorIndex
	ranker   *retrieval.Ranker
	llm      Answerer
	sessions session.Store
	mode     Mode
	choose   func(n int) int
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMode selects single or two-step answering. Empty keeps the default.
func WithMode(mode Mode) Option {
	return func(s *Service) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// WithChooser replaces the random pick among GreetingReplies.
func WithChooser(choose func(n int) int) Option {
	return func(s *Service) {
		if choose != nil {
			s.choose = choose
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires the answering flow. ranker and answerer must be non-nil.
func NewService(embedder embedding.Embedder, index storage.VectorIndex, ranker *retrieval.Ranker, answerer Answerer, sessions session.Store, opts ...Option) *Service {
	s := &Service{
		embedder: embedder,
		index:    index,
		ranker:   ranker,
		llm:      answerer,
		sessions: sessions,
		mode:     ModeSingle,
		choose:   rand.IntN,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "chat", "mode", string(s.mode))
	return s
}

// Ask answers one message. Messages that get no model answer (greetings,
// out of scope, nothing retrieved) still succeed with an explanatory reply.
func (s *Service) Ask(ctx context.Context, req Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	sessionID, err := s.openSession(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.AppendMessage(ctx, sessionID, session.Message{Role: session.RoleUser, Content: message}); err != nil {
		return nil, fmt.Errorf("record user message: %w", err)
	}

	resp := &Response{SessionID: sessionID, Category: classifier.Classify(message)}

	switch resp.Category {
	case classifier.Greeting:
		resp.Reply = GreetingReplies[s.choose(len(GreetingReplies))]
		return s.reply(ctx, resp)
	case classifier.OutOfScope:
		resp.Reply = OutOfScopeReply
		return s.reply(ctx, resp)
	}

	qc, err := s.Retrieve(ctx, message, req.DocName)
	switch {
	case errors.Is(err, ErrNoRelevantContent):
		resp.NoContent = true
		resp.Reply = NoDocumentsReply
		if req.DocName != "" {
			resp.Reply = fmt.Sprintf(noDocumentDataFmt, req.DocName)
		}
		return s.reply(ctx, resp)
	case err != nil:
		return nil, s.fail(ctx, sessionID, err)
	case qc.Empty():
		resp.NoContent = true
		resp.Reply = NoRelevantReply
		return s.reply(ctx, resp)
	}

	for _, sec := range qc.Sections {
		resp.ContextUsed = append(resp.ContextUsed, sec.Text)
	}

	answer, found, err := s.answer(ctx, message, qc.Text)
	if err != nil {
		return nil, s.fail(ctx, sessionID, err)
	}
	if !found {
		resp.NoContent = true
		resp.Reply = NoRelevantReply
		return s.reply(ctx, resp)
	}
	resp.Reply = answer.Text
	resp.Model = answer.Model
	s.logger.Debug("Answered",
		"session", sessionID,
		"sections", len(qc.Sections),
		"prompt_tokens", answer.PromptTokens,
		"completion_tokens", answer.CompletionTokens,
	)
	return s.reply(ctx, resp)
}

// Retrieve embeds the query, searches the index and returns the ranked,
// assembled context. It returns ErrNoRelevantContent when the search has no
// candidates at all.
func (s *Service) Retrieve(ctx context.Context, query, docName string) (*retrieval.Context, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrUpstream, err)
	}

	filter := ""
	if docName != "" {
		filter = indexer.DocumentFilter(docName)
	}
	hits, err := s.index.Search(ctx, vector, s.ranker.Config().SearchK, filter)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if len(hits) == 0 {
		return nil, ErrNoRelevantContent
	}
	return s.ranker.Rank(query, hits), nil
}

// answer reports found=false when the two-step extraction finds nothing.
func (s *Service) answer(ctx context.Context, question, assembled string) (*llm.AnswerResponse, bool, error) {
	if s.mode != ModeTwoStep {
		resp, err := s.llm.Answer(ctx, llm.AnswerRequest{Question: question, Context: assembled})
		if err != nil {
			return nil, false, fmt.Errorf("%w: answer: %w", ErrUpstream, err)
		}
		return resp, true, nil
	}

	facts, err := s.llm.ExtractFacts(ctx, llm.ExtractionRequest{Question: question, Context: assembled})
	if err != nil {
		return nil, false, fmt.Errorf("%w: extract facts: %w", ErrUpstream, err)
	}
	if !facts.Found {
		return nil, false, nil
	}
	resp, err := s.llm.Synthesize(ctx, llm.SynthesisRequest{Question: question, Facts: facts.Facts})
	if err != nil {
		return nil, false, fmt.Errorf("%w: synthesize: %w", ErrUpstream, err)
	}
	return resp, true, nil
}

func (s *Service) openSession(ctx context.Context, req Request) (string, error) {
	if req.SessionID != "" {
		if _, err := s.sessions.Get(ctx, req.SessionID); err != nil {
			return "", err
		}
		return req.SessionID, nil
	}
	created, err := s.sessions.Create(ctx, req.DocName)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return created.ID, nil
}

func (s *Service) reply(ctx context.Context, resp *Response) (*Response, error) {
	msg := session.Message{Role: session.RoleAssistant, Content: resp.Reply}
	if _, err := s.sessions.AppendMessage(ctx, resp.SessionID, msg); err != nil {
		return nil, fmt.Errorf("record reply: %w", err)
	}
	return resp, nil
}

// fail records an error reply in the session and returns err.
func (s *Service) fail(ctx context.Context, sessionID string, err error) error {
	s.logger.Warn("Failed to answer", "session", sessionID, "error", err)
	msg := session.Message{Role: session.RoleAssistant, Content: providerErrorReply}
	if !errors.Is(err, ErrUpstream) {
		msg.Content = "The answer could not be generated: " + err.Error()
	}
	if _, recErr := s.sessions.AppendMessage(context.WithoutCancel(ctx), sessionID, msg); recErr != nil {
		s.logger.Warn("Failed to record error reply", "session", sessionID, "error", recErr)
	}
	return err
}
