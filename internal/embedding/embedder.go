package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension for text-embedding-3-small.
	DefaultDimension = 1536

	// DefaultBatchSize keeps request bodies small enough for compatible servers.
	DefaultBatchSize = 100

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 30 * time.Second
)

// Embedder maps text to fixed-length vectors. Implementations must be
// deterministic for identical input within a process.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// OpenAIEmbedder generates embeddings through an OpenAI-compatible API.
// It batches requests, bounds every attempt with a timeout, and retries
// with exponential backoff on rate limit errors.
type OpenAIEmbedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter

	retryInitial    time.Duration
	retryMaxElapsed time.Duration
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// Option configures an OpenAIEmbedder.
type Option func(*OpenAIEmbedder)

// WithModel sets the embedding model name.
func WithModel(model string) Option {
	return func(e *OpenAIEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithDimension declares the vector size the model returns.
func WithDimension(dim int) Option {
	return func(e *OpenAIEmbedder) {
		if dim > 0 {
			e.dimension = dim
		}
	}
}

// WithBatchSize sets how many texts go into one request.
func WithBatchSize(size int) Option {
	return func(e *OpenAIEmbedder) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// WithTimeout bounds each request attempt.
func WithTimeout(d time.Duration) Option {
	return func(e *OpenAIEmbedder) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRateLimit caps requests per second. Zero or negative disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(e *OpenAIEmbedder) {
		if perSecond <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetry tunes the backoff applied to rate limited requests.
func WithRetry(initial, maxElapsed time.Duration) Option {
	return func(e *OpenAIEmbedder) {
		if initial > 0 {
			e.retryInitial = initial
		}
		if maxElapsed > 0 {
			e.retryMaxElapsed = maxElapsed
		}
	}
}

// NewOpenAIEmbedder creates an embedder with the given client and options.
func NewOpenAIEmbedder(client *Client, opts ...Option) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		client:          client,
		model:           DefaultModel,
		dimension:       DefaultDimension,
		batchSize:       DefaultBatchSize,
		timeout:         DefaultTimeout,
		retryInitial:    500 * time.Millisecond,
		retryMaxElapsed: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the configured vector size.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for the given texts, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Retries with exponential backoff on rate limit errors (HTTP 429).
// Timeouts and other errors are permanent and fail immediately.
func (e *OpenAIEmbedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err := e.client.client.Embeddings.New(attemptCtx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return backoff.Permanent(fmt.Errorf("%w after %s", ErrTimeout, e.timeout))
			}
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrProvider, err))
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: expected %d vectors, got %d",
				ErrEmptyResponse, len(texts), len(resp.Data)))
		}

		// Responses carry an index; place each vector at its input position.
		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			idx := int(data.Index)
			if idx < 0 || idx >= len(embeddings) {
				idx = i
			}
			embeddings[idx] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInitial
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = e.retryMaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if isRateLimitError(err) {
			return nil, fmt.Errorf("%w: rate limited: %v", ErrProvider, err)
		}
		return nil, err
	}
	return embeddings, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but the index stores float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
