// Package app builds every docqa component from a config.Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mike-a-ellis/docqa/internal/catalog"
	"github.com/mike-a-ellis/docqa/internal/chat"
	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/config"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	ghclient "github.com/mike-a-ellis/docqa/internal/github"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/kv"
	"github.com/mike-a-ellis/docqa/internal/llm"
	"github.com/mike-a-ellis/docqa/internal/retrieval"
	"github.com/mike-a-ellis/docqa/internal/session"
	"github.com/mike-a-ellis/docqa/internal/source"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// ErrNoGitHubRepo is returned when github.owner or github.repo is unset.
var ErrNoGitHubRepo = errors.New("github owner and repo must be configured")

// App holds the wired components. Close releases them.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Embedder embedding.Embedder
	Index    storage.VectorIndex
	Sessions session.Store
	Catalog  catalog.Catalog
	Pipeline *indexer.Pipeline
	Chat     *chat.Service
	// LLM is nil when no API key is available.
	LLM *llm.Client

	db *kv.Backend
}

// NewLogger returns a text logger at the configured level.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// New opens the stores and builds the pipeline and chat service.
// When no OpenAI API key is set the hash embedder still works offline, and
// chat answers fail with llm.ErrProvider.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	var api *embedding.Client
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		client, err := embedding.NewClient(embedding.ClientConfig{APIKey: key, BaseURL: cfg.Embedding.BaseURL})
		if err != nil {
			return fmt.Errorf("openai client: %w", err)
		}
		api = client
		a.LLM = llm.New(api.Client(),
			llm.WithModel(cfg.LLM.Model),
			llm.WithTimeout(cfg.LLMTimeout()),
			llm.WithLogger(a.Logger),
		)
	}

	switch cfg.Embedding.Provider {
	case config.ProviderHash:
		a.Embedder = embedding.NewHashEmbedder(cfg.Embedding.Dimension)
	case config.ProviderOpenAI:
		if api == nil {
			return errors.New("embedding provider openai requires OPENAI_API_KEY (set embedding.provider: hash to run offline)")
		}
		a.Embedder = embedding.NewOpenAIEmbedder(api,
			embedding.WithModel(cfg.Embedding.Model),
			embedding.WithDimension(cfg.Embedding.Dimension),
			embedding.WithBatchSize(cfg.Embedding.BatchSize),
			embedding.WithTimeout(cfg.EmbeddingTimeout()),
			embedding.WithRateLimit(cfg.Embedding.RateLimit, cfg.Embedding.Burst),
		)
	}

	index, err := openIndex(ctx, cfg, a.Logger)
	if err != nil {
		return err
	}
	a.Index = index

	db, err := kv.Open(cfg.DBDir(), false, a.Logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.Sessions = session.NewBadgerStore(db)
	a.Catalog = catalog.NewBadgerCatalog(db)

	ch, err := chunker.New(chunker.WithChunkSize(cfg.Chunker.Size), chunker.WithOverlap(cfg.Chunker.Overlap))
	if err != nil {
		return fmt.Errorf("chunker: %w", err)
	}

	opts := []indexer.Option{
		indexer.WithEmbedBatch(cfg.Indexer.EmbedBatch),
		indexer.WithExtractionRepair(cfg.Chunker.RepairExtraction),
		indexer.WithLogger(a.Logger),
	}
	if cfg.Indexer.PoolSize > 0 {
		opts = append(opts, indexer.WithPoolSize(cfg.Indexer.PoolSize))
	}
	if cfg.LLM.Analyze && a.LLM != nil {
		opts = append(opts, indexer.WithAnalyzer(a.LLM))
	}
	a.Pipeline, err = indexer.NewPipeline(ch, a.Embedder, a.Index, a.Catalog, opts...)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	var answerer chat.Answerer = unavailableLLM{}
	if a.LLM != nil {
		answerer = a.LLM
	}
	a.Chat = chat.NewService(a.Embedder, a.Index, retrieval.NewRanker(cfg.Retrieval), answerer, a.Sessions,
		chat.WithMode(chat.Mode(cfg.LLM.AnswerMode)),
		chat.WithLogger(a.Logger),
	)
	return nil
}

func openIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.VectorIndex, error) {
	switch cfg.Index.Backend {
	case config.BackendQdrant:
		q := cfg.Index.Qdrant
		index, err := storage.NewQdrantIndex(ctx, q.Host, q.Port,
			storage.WithCollection(q.Collection),
			storage.WithQdrantLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", q.Host, q.Port, err)
		}
		return index, nil
	default:
		index, err := storage.NewFileIndex(cfg.IndexDir(), storage.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		return index, nil
	}
}

// GitHubFetcher returns a source over the configured repository path.
// GITHUB_TOKEN is used when set.
func (a *App) GitHubFetcher() (*ghclient.Fetcher, error) {
	gh := a.Config.GitHub
	if gh.Owner == "" || gh.Repo == "" {
		return nil, ErrNoGitHubRepo
	}
	var opts []ghclient.ClientOption
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		opts = append(opts, ghclient.WithToken(token))
	}
	client, err := ghclient.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}
	return ghclient.NewFetcher(client, gh.Owner, gh.Repo, gh.Path, gh.Ref), nil
}

// Watcher re-ingests files under dir as they are created or changed.
func (a *App) Watcher(dir string) *source.Watcher {
	d := source.NewDir(dir, catalog.SourceWatch)
	handle := func(ctx context.Context, name string) error {
		doc, err := d.Load(ctx, name)
		if err != nil {
			return err
		}
		res, err := a.Pipeline.Ingest(ctx, doc)
		if err != nil {
			return err
		}
		a.Logger.Info("Re-indexed document", "name", name, "chunks", res.Chunks, "entries", res.Entries)
		return nil
	}
	return source.NewWatcher(d, handle,
		source.WithDebounce(a.Config.WatchDebounce()),
		source.WithWatcherLogger(a.Logger),
	)
}

// Close releases the pipeline pool and closes the stores.
func (a *App) Close() error {
	var errs []error
	if a.Pipeline != nil {
		a.Pipeline.Release()
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	return errors.Join(errs...)
}

// unavailableLLM answers every call with llm.ErrProvider.
type unavailableLLM struct{}

var errNoAPIKey = fmt.Errorf("%w: OPENAI_API_KEY is not set", llm.ErrProvider)

func (unavailableLLM) Answer(context.Context, llm.AnswerRequest) (*llm.AnswerResponse, error) {
	return nil, errNoAPIKey
}

func (unavailableLLM) ExtractFacts(context.Context, llm.ExtractionRequest) (*llm.ExtractionResponse, error) {
	return nil, errNoAPIKey
}

func (unavailableLLM) Synthesize(context.Context, llm.SynthesisRequest) (*llm.AnswerResponse, error) {
	return nil, errNoAPIKey
}
