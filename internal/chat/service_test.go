package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/catalog"
	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/classifier"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/llm"
	"github.com/mike-a-ellis/docqa/internal/retrieval"
	"github.com/mike-a-ellis/docqa/internal/session"
	"github.com/mike-a-ellis/docqa/internal/source"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

const linuxDoc = "LINUX COMMANDS\n\n1. ls lists files in a directory.\n2. pwd prints the working directory.\n3. cd changes the directory."

// fakeLLM records every request and answers from canned fields.
type fakeLLM struct {
	mu        sync.Mutex
	answers   []llm.AnswerRequest
	extracts  []llm.ExtractionRequest
	syntheses []llm.SynthesisRequest

	facts string
	err   error
}

func (f *fakeLLM) Answer(ctx context.Context, req llm.AnswerRequest) (*llm.AnswerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.AnswerResponse{Text: "ls lists files.", Model: "fake-model"}, nil
}

func (f *fakeLLM) ExtractFacts(ctx context.Context, req llm.ExtractionRequest) (*llm.ExtractionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracts = append(f.extracts, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ExtractionResponse{Facts: f.facts, Found: !strings.Contains(f.facts, llm.NoRelevantInformation)}, nil
}

func (f *fakeLLM) Synthesize(ctx context.Context, req llm.SynthesisRequest) (*llm.AnswerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syntheses = append(f.syntheses, req)
	return &llm.AnswerResponse{Text: "Synthesized: " + req.Facts, Model: "fake-model"}, nil
}

type fixture struct {
	svc      *Service
	llm      *fakeLLM
	sessions *session.MemoryStore
	pipeline *indexer.Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	embedder := embedding.NewHashEmbedder(64)
	index, err := storage.NewFileIndex(t.TempDir())
	require.NoError(t, err)
	ch, err := chunker.New()
	require.NoError(t, err)
	pipeline, err := indexer.NewPipeline(ch, embedder, index, catalog.NewMemoryCatalog())
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	fake := &fakeLLM{}
	sessions := session.NewMemoryStore()
	svc := NewService(embedder, index, retrieval.NewRanker(retrieval.DefaultConfig()), fake, sessions, opts...)
	return &fixture{svc: svc, llm: fake, sessions: sessions, pipeline: pipeline}
}

func (f *fixture) ingest(t *testing.T, name, text string) {
	t.Helper()
	_, err := f.pipeline.Ingest(context.Background(), &source.Document{Name: name, Text: text})
	require.NoError(t, err)
}

func (f *fixture) messages(t *testing.T, id string) []session.Message {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return s.Messages
}

func TestAsk_EmptyMessage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ask(context.Background(), Request{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestAsk_Greeting(t *testing.T) {
	f := newFixture(t, WithChooser(func(n int) int { return 1 }))

	resp, err := f.svc.Ask(context.Background(), Request{Message: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, classifier.Greeting, resp.Category)
	assert.Equal(t, GreetingReplies[1], resp.Reply)
	assert.Empty(t, f.llm.answers)

	msgs := f.messages(t, resp.SessionID)
	require.Len(t, msgs, 2)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, GreetingReplies[1], msgs[1].Content)
}

func TestAsk_OutOfScope(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Ask(context.Background(), Request{Message: "hey there"})
	require.NoError(t, err)
	assert.Equal(t, classifier.OutOfScope, resp.Category)
	assert.Equal(t, OutOfScopeReply, resp.Reply)
	assert.Empty(t, f.llm.answers)
}

func TestAsk_NoDocuments(t *testing.T) {
	tests := []struct {
		name    string
		docName string
		want    string
	}{
		{"no index", "", NoDocumentsReply},
		{"unknown document", "missing.txt", "No data available for document: missing.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.docName != "" {
				f.ingest(t, "linux.txt", linuxDoc)
			}

			resp, err := f.svc.Ask(context.Background(), Request{Message: "what is ls", DocName: tt.docName})
			require.NoError(t, err)
			assert.True(t, resp.NoContent)
			assert.Equal(t, tt.want, resp.Reply)
			assert.Empty(t, f.llm.answers)
			assert.Equal(t, tt.want, f.messages(t, resp.SessionID)[1].Content)
		})
	}
}

func TestAsk_SingleShot(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "linux.txt", linuxDoc)
	f.ingest(t, "cooking.txt", "Boil pasta in salted water for ten minutes.")

	resp, err := f.svc.Ask(context.Background(), Request{Message: "what are the linux commands", DocName: "linux.txt"})
	require.NoError(t, err)
	assert.Equal(t, classifier.DocumentRelated, resp.Category)
	assert.Equal(t, "ls lists files.", resp.Reply)
	assert.Equal(t, "fake-model", resp.Model)
	assert.False(t, resp.NoContent)
	require.NotEmpty(t, resp.ContextUsed)
	for _, text := range resp.ContextUsed {
		assert.Contains(t, text, "Document: linux.txt\n")
	}

	require.Len(t, f.llm.answers, 1)
	req := f.llm.answers[0]
	assert.Equal(t, "what are the linux commands", req.Question)
	assert.True(t, strings.HasPrefix(req.Context, "=== DOCUMENT SECTION 1 ===\n"))
	assert.NotContains(t, req.Context, "pasta")

	s, err := f.sessions.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "linux.txt", s.DocumentID)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "ls lists files.", s.Messages[1].Content)
}

func TestAsk_TwoStep(t *testing.T) {
	t.Run("facts found", func(t *testing.T) {
		f := newFixture(t, WithMode(ModeTwoStep))
		f.llm.facts = "- ls lists files"
		f.ingest(t, "linux.txt", linuxDoc)

		resp, err := f.svc.Ask(context.Background(), Request{Message: "what does ls do"})
		require.NoError(t, err)
		assert.Equal(t, "Synthesized: - ls lists files", resp.Reply)
		require.Len(t, f.llm.extracts, 1)
		require.Len(t, f.llm.syntheses, 1)
		assert.Equal(t, "what does ls do", f.llm.syntheses[0].Question)
		assert.Empty(t, f.llm.answers)
	})

	t.Run("nothing relevant", func(t *testing.T) {
		f := newFixture(t, WithMode(ModeTwoStep))
		f.llm.facts = llm.NoRelevantInformation
		f.ingest(t, "linux.txt", linuxDoc)

		resp, err := f.svc.Ask(context.Background(), Request{Message: "what does ls do"})
		require.NoError(t, err)
		assert.True(t, resp.NoContent)
		assert.Equal(t, NoRelevantReply, resp.Reply)
		assert.Empty(t, f.llm.syntheses)
	})
}

func TestAsk_ProviderFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.llm.err = fmt.Errorf("%w: status 503", llm.ErrProvider)
	f.ingest(t, "linux.txt", linuxDoc)

	sess, err := f.sessions.Create(context.Background(), "")
	require.NoError(t, err)

	_, err = f.svc.Ask(context.Background(), Request{Message: "what is pwd", SessionID: sess.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, llm.ErrProvider)

	msgs := f.messages(t, sess.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, session.RoleAssistant, msgs[1].Role)
	assert.Equal(t, providerErrorReply, msgs[1].Content)
}

func TestAsk_ContinuesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Ask(ctx, Request{Message: "hi"})
	require.NoError(t, err)
	second, err := f.svc.Ask(ctx, Request{Message: "thanks", SessionID: first.SessionID})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Len(t, f.messages(t, first.SessionID), 4)

	_, err = f.svc.Ask(ctx, Request{Message: "hi", SessionID: "does-not-exist"})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRetrieve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Retrieve(ctx, "what is ls", "")
	assert.ErrorIs(t, err, ErrNoRelevantContent)

	f.ingest(t, "linux.txt", linuxDoc)
	qc, err := f.svc.Retrieve(ctx, "what is ls", "")
	require.NoError(t, err)
	assert.False(t, qc.Empty())
	assert.Equal(t, "what is ls", qc.Query)
	for i := 1; i < len(qc.Sections); i++ {
		assert.GreaterOrEqual(t, qc.Sections[i-1].Lexical, qc.Sections[i].Lexical)
	}
}
