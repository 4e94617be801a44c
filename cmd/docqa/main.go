// Package main provides the docqa CLI for indexing documents and asking questions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/docqa/internal/app"
	"github.com/mike-a-ellis/docqa/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Question answering over your own documents",
	Long: `docqa indexes text and markdown documents into a vector index and answers
questions from them.

Configuration is read from docqa.yaml (override with --config) and these
environment variables:
  DOCQA_DATA_DIR      data directory (default: data)
  EMBEDDING_PROVIDER  openai or hash
  OPENAI_API_KEY      OpenAI API key for embeddings and answers
  OPENAI_BASE_URL     OpenAI-compatible endpoint
  LLM_MODEL           answer model (default: gpt-4o-mini)
  QDRANT_HOST         Qdrant hostname when index.backend is qdrant
  QDRANT_PORT         Qdrant gRPC port (default: 6334)
  GITHUB_TOKEN        GitHub token for sync-github (optional)
  LOG_LEVEL           debug, info, warn or error`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	rootCmd.AddCommand(ingestCmd, syncGitHubCmd, watchCmd, askCmd, deleteCmd, statusCmd, sessionsCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads the config, builds the app and runs fn until it returns or
// the process is interrupted.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, app.NewLogger(cfg, os.Stderr))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "close: %v\n", cerr)
		}
	}()
	return fn(ctx, a)
}
