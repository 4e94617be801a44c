package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/catalog"
	"github.com/mike-a-ellis/docqa/internal/chat"
	"github.com/mike-a-ellis/docqa/internal/classifier"
	"github.com/mike-a-ellis/docqa/internal/config"
	"github.com/mike-a-ellis/docqa/internal/llm"
	"github.com/mike-a-ellis/docqa/internal/source"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GITHUB_TOKEN", "")
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Embedding.Provider = config.ProviderHash
	cfg.Embedding.Dimension = 64
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_OfflineRoundTrip(t *testing.T) {
	cfg := offlineConfig(t)
	ctx := context.Background()

	a, err := New(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, a.LLM)

	res, err := a.Pipeline.Ingest(ctx, &source.Document{
		Name:   "linux.txt",
		Text:   "LINUX COMMANDS\n\nls lists files in a directory.\npwd means print working directory.",
		Source: catalog.SourceFile,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Entries)

	resp, err := a.Chat.Ask(ctx, chat.Request{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, classifier.Greeting, resp.Category)

	_, err = a.Chat.Ask(ctx, chat.Request{Message: "what does ls do"})
	assert.ErrorIs(t, err, llm.ErrProvider)

	require.NoError(t, a.Close())

	// Catalog, sessions and index survive a restart.
	b, err := New(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer b.Close()

	docs, err := b.Catalog.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "linux.txt", docs[0].Name)

	sessions, err := b.Sessions.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	stats, err := b.Index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, 64, stats.Dimension)
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Embedding.Provider = config.ProviderOpenAI

	_, err := New(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestGitHubFetcher_RequiresRepo(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(t), quietLogger())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.GitHubFetcher()
	assert.ErrorIs(t, err, ErrNoGitHubRepo)

	a.Config.GitHub.Owner = "acme"
	a.Config.GitHub.Repo = "handbook"
	f, err := a.GitHubFetcher()
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.NotNil(t, a.Watcher(t.TempDir()))
}
