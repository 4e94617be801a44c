// Package llm wraps the chat completion calls used to answer questions and
// analyse documents. Each call has its own request and response types.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds one completion call.
	DefaultTimeout = 60 * time.Second

	// analysisChars is how much of a document the analysis call sees.
	analysisChars = 4000
)

const answerSystemPrompt = "You are a helpful document analysis assistant. Your task is to provide accurate and COMPREHENSIVE answers based on the provided document context.\n\n" +
	"INSTRUCTIONS:\n" +
	"1. Use ALL relevant information from the provided context.\n" +
	"2. If the answer is present in the context, provide it clearly.\n" +
	"3. If the answer is not directly in the context, but you can infer it from the context, do so and explain your reasoning.\n" +
	"4. If the answer truly cannot be found, say: 'The provided document does not contain specific information about [topic]'.\n" +
	"5. Include examples, details, and references from the document when available.\n" +
	"6. If multiple sections are relevant, combine them in your answer.\n" +
	"7. Be precise and specific.\n\n" +
	"Format your response as:\n" +
	"- Direct comprehensive answer using ALL relevant information from context\n" +
	"- Include specific examples and syntax when available\n" +
	"- Reference page/section numbers if mentioned in context"

const extractionPrompt = `You are a data extraction specialist. Your task is to extract ALL relevant facts, figures, and key points from the provided document context that directly answer the user's question.

CRITICAL INSTRUCTIONS:
1. Be comprehensive. Extract every piece of information related to the query.
2. Do not summarize or rephrase. Extract the information as close to the original text as possible.
3. If the context contains lists (e.g., commands, features, steps), extract all items in the list.
4. Ignore information that is not relevant to the user's question.
5. Present the extracted facts in a clear, structured list or a simple JSON format. Use bullet points for lists.
6. If no relevant information is found, state '` + NoRelevantInformation + `'.

DOCUMENT CONTEXT:
---
%s
---

USER QUESTION: %s

EXTRACTED FACTS:`

const synthesisPrompt = `You are an expert technical writer. Your task is to synthesize the provided extracted facts into a comprehensive, clear, and well-structured answer to the user's question.

CRITICAL INSTRUCTIONS:
1. Start with a clear, introductory sentence that directly addresses the user's question.
2. Use the extracted facts to build your answer. Do NOT use any external knowledge.
3. When presenting lists (like commands or features), use bullet points for readability.
4. For each item in a list, provide the necessary details included in the facts (e.g., command descriptions, syntax).
5. Combine related information into logical paragraphs.
6. End with a concluding sentence that summarizes the key takeaway, if appropriate.
7. If the facts state '` + NoRelevantInformation + `', your response should be: 'The provided document does not contain specific information about your query.'

USER'S ORIGINAL QUESTION: %s

EXTRACTED FACTS:
---
%s
---

FINAL COMPREHENSIVE ANSWER:`

const analysisPrompt = `You are a document analysis expert. Your task is to analyze the provided document content and generate a structured JSON output containing a summary, key points, and a table of contents.

CRITICAL INSTRUCTIONS:
1. Summary: Provide a concise summary of the document (4-5 sentences).
2. Key Points: Extract the most important topics or conclusions as a list of strings.
3. Table of Contents: Create a table of contents with chapter/section titles and corresponding page ranges (e.g., 'Chapter 1: Introduction, Pages 1-5'). If the document has no clear structure, create a logical one based on the content.
4. Format the output as a single, clean JSON object with the keys 'summary', 'key_points', and 'table_of_contents'.

Document name: %s

DOCUMENT CONTENT (first 4000 characters):
---
%s
---

JSON OUTPUT:`

// Client issues chat completions against an OpenAI-compatible API.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client using an already configured OpenAI client.
func New(api *openai.Client, opts ...Option) *Client {
	c := &Client{
		api:     api,
		model:   DefaultModel,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "llm", "model", c.model)
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Answer produces a single-shot answer from the assembled context.
func (c *Client) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	user := fmt.Sprintf("DOCUMENT CONTEXT:\n%s\n\nUSER QUESTION: %s\n\nPlease provide an accurate answer based solely on the document context above.",
		req.Context, req.Question)

	return c.complete(ctx, "answer", openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(answerSystemPrompt),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(1000),
	})
}

// ExtractFacts pulls every fact relevant to the question out of the context.
func (c *Client) ExtractFacts(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	resp, err := c.complete(ctx, "extract", openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(extractionPrompt, req.Context, req.Question)),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(1500),
	})
	if err != nil {
		return nil, err
	}

	return &ExtractionResponse{
		Facts:            resp.Text,
		Found:            !strings.Contains(resp.Text, NoRelevantInformation),
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}, nil
}

// Synthesize writes the final answer from extracted facts.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) (*AnswerResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	return c.complete(ctx, "synthesize", openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(synthesisPrompt, req.Question, req.Facts)),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(1000),
	})
}

// Analyze returns a summary, key points and table of contents for a document.
func (c *Client) Analyze(ctx context.Context, req AnalysisRequest) (*DocumentAnalysis, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	resp, err := c.complete(ctx, "analyze", openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(analysisPrompt, req.DocumentName, truncate(req.Text, analysisChars))),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(1500),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, err
	}

	var analysis DocumentAnalysis
	if err := json.Unmarshal([]byte(resp.Text), &analysis); err != nil {
		return nil, fmt.Errorf("%w: failed to parse analysis: %v", ErrProvider, err)
	}
	return &analysis, nil
}

// complete runs one chat completion under the client timeout and maps failures.
func (c *Client) complete(ctx context.Context, op string, params openai.ChatCompletionNewParams) (*AnswerResponse, error) {
	params.Model = c.model

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(callCtx, params)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, op, c.timeout)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrProvider, op, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResponse, op)
	}

	c.logger.Debug("completion finished",
		"op", op,
		"duration", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return &AnswerResponse{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
