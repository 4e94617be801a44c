package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model          string           `json:"model"`
	Temperature    *float64         `json:"temperature"`
	MaxTokens      int              `json:"max_tokens"`
	ResponseFormat map[string]any   `json:"response_format"`
	Messages       []map[string]any `json:"messages"`
}

// fakeCompletions serves chat completions that reply with content and records each request.
func fakeCompletions(t *testing.T, content string, captured *[]capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req capturedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*captured = append(*captured, req)

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]int{"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49},
		}))
	}))
}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	api := openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithMaxRetries(0),
	)
	return New(&api, opts...)
}

func messageText(m map[string]any) string {
	s, _ := m["content"].(string)
	return s
}

func TestAnswer(t *testing.T) {
	var reqs []capturedRequest
	srv := fakeCompletions(t, "  ls lists files.  ", &reqs)
	defer srv.Close()

	c := newTestClient(srv, WithModel("test-model"))
	resp, err := c.Answer(context.Background(), AnswerRequest{
		Question: "what does ls do",
		Context:  "=== DOCUMENT SECTION 1 ===\nls lists files",
	})
	require.NoError(t, err)

	assert.Equal(t, "ls lists files.", resp.Text)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, int64(42), resp.PromptTokens)
	assert.Equal(t, int64(7), resp.CompletionTokens)

	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "test-model", req.Model)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.1, *req.Temperature)
	assert.Equal(t, 1000, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0]["role"])
	assert.True(t, strings.HasPrefix(messageText(req.Messages[0]), "You are a helpful document analysis assistant."))
	assert.Equal(t,
		"DOCUMENT CONTEXT:\n=== DOCUMENT SECTION 1 ===\nls lists files\n\nUSER QUESTION: what does ls do\n\nPlease provide an accurate answer based solely on the document context above.",
		messageText(req.Messages[1]))
}

func TestValidation(t *testing.T) {
	var reqs []capturedRequest
	srv := fakeCompletions(t, "unused", &reqs)
	defer srv.Close()
	c := newTestClient(srv)
	ctx := context.Background()

	_, err := c.Answer(ctx, AnswerRequest{Question: " ", Context: "ctx"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = c.Answer(ctx, AnswerRequest{Question: "q"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = c.ExtractFacts(ctx, ExtractionRequest{Question: "q"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = c.Synthesize(ctx, SynthesisRequest{Question: "q"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = c.Analyze(ctx, AnalysisRequest{DocumentName: "a.txt"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, reqs)
}

func TestTwoStep(t *testing.T) {
	t.Run("facts found", func(t *testing.T) {
		var reqs []capturedRequest
		srv := fakeCompletions(t, "- ls: list files", &reqs)
		defer srv.Close()
		c := newTestClient(srv)

		facts, err := c.ExtractFacts(context.Background(), ExtractionRequest{Question: "list commands", Context: "ls lists files"})
		require.NoError(t, err)
		assert.True(t, facts.Found)
		assert.Equal(t, "- ls: list files", facts.Facts)
		require.NotNil(t, reqs[0].Temperature)
		assert.Equal(t, 0.0, *reqs[0].Temperature)
		assert.Equal(t, 1500, reqs[0].MaxTokens)
		assert.Contains(t, messageText(reqs[0].Messages[0]), "USER QUESTION: list commands")

		answer, err := c.Synthesize(context.Background(), SynthesisRequest{Question: "list commands", Facts: facts.Facts})
		require.NoError(t, err)
		assert.Equal(t, "- ls: list files", answer.Text)
		assert.Equal(t, 1000, reqs[1].MaxTokens)
		assert.Contains(t, messageText(reqs[1].Messages[0]), "EXTRACTED FACTS:\n---\n- ls: list files\n---")
	})

	t.Run("nothing relevant", func(t *testing.T) {
		var reqs []capturedRequest
		srv := fakeCompletions(t, NoRelevantInformation, &reqs)
		defer srv.Close()

		facts, err := newTestClient(srv).ExtractFacts(context.Background(), ExtractionRequest{Question: "q", Context: "c"})
		require.NoError(t, err)
		assert.False(t, facts.Found)
	})
}

func TestAnalyze(t *testing.T) {
	var reqs []capturedRequest
	body := `{"summary":"About Linux.","key_points":["files","processes"],"table_of_contents":["Intro, Pages 1-2",{"title":"Commands","pages":"3-5"}]}`
	srv := fakeCompletions(t, body, &reqs)
	defer srv.Close()

	long := strings.Repeat("é", 5000)
	analysis, err := newTestClient(srv).Analyze(context.Background(), AnalysisRequest{DocumentName: "linux.txt", Text: long})
	require.NoError(t, err)

	assert.Equal(t, "About Linux.", analysis.Summary)
	assert.Equal(t, []string{"files", "processes"}, analysis.KeyPoints)
	assert.Equal(t, Entries{"Intro, Pages 1-2", "Commands, 3-5"}, analysis.TableOfContents)

	assert.Equal(t, "json_object", reqs[0].ResponseFormat["type"])
	prompt := messageText(reqs[0].Messages[0])
	assert.Contains(t, prompt, "Document name: linux.txt")
	assert.Equal(t, 4000, strings.Count(prompt, "é"))
}

func TestAnalyze_BadJSON(t *testing.T) {
	var reqs []capturedRequest
	srv := fakeCompletions(t, "not json", &reqs)
	defer srv.Close()

	_, err := newTestClient(srv).Analyze(context.Background(), AnalysisRequest{Text: "x"})
	assert.ErrorIs(t, err, ErrProvider)
}

func TestErrors(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
		}))
		defer srv.Close()

		_, err := newTestClient(srv).Answer(context.Background(), AnswerRequest{Question: "q", Context: "c"})
		assert.ErrorIs(t, err, ErrProvider)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		_, err := newTestClient(srv, WithTimeout(50*time.Millisecond)).
			Answer(context.Background(), AnswerRequest{Question: "q", Context: "c"})
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
		}))
		defer srv.Close()

		_, err := newTestClient(srv).Answer(context.Background(), AnswerRequest{Question: "q", Context: "c"})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "éé", truncate("ééé", 2))
}
