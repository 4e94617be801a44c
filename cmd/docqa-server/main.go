// Package main provides the docqa server: the JSON HTTP API and the MCP tools.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mike-a-ellis/docqa/internal/app"
	"github.com/mike-a-ellis/docqa/internal/config"
	"github.com/mike-a-ellis/docqa/internal/httpapi"
	mcpserver "github.com/mike-a-ellis/docqa/internal/mcp"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(os.Getenv("DOCQA_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// Stdout carries the MCP protocol in stdio mode, so logs go to stderr.
	logger := app.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to create upload directory: %v", err)
	}

	stats, err := a.Index.Stats(ctx)
	if err != nil {
		log.Fatalf("failed to read index: %v", err)
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Chat:    a.Chat,
		Catalog: a.Catalog,
		Index:   a.Index,
	})

	api := httpapi.NewHandler(httpapi.Config{
		Chat:      a.Chat,
		Ingester:  a.Pipeline,
		Sessions:  a.Sessions,
		Catalog:   a.Catalog,
		Health:    mcpserver.NewHealthHandler(a.Index, stats.Backend),
		UploadDir: cfg.Server.UploadDir,
		MaxUpload: int64(cfg.Server.MaxUploadMB) << 20,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))
	mux.Handle("GET /{$}", mcpserver.NewLandingHandler())
	mux.Handle("/", api)

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.Server.Mode == config.ModeHTTP {
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "index", stats.Backend, "entries", stats.Entries)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	// Stdio mode: MCP over stdin/stdout, HTTP API in the background for local testing
	go func() {
		logger.Info("Starting background HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	logger.Info("Starting docqa MCP server (stdio mode)")
	if err := server.Run(ctx); err != nil {
		logger.Error("MCP server error", "error", err)
		a.Close()
		os.Exit(1)
	}
}
