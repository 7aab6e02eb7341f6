package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/saarthi-dev/saarthi/internal/api"
	"github.com/saarthi-dev/saarthi/internal/cache"
	"github.com/saarthi-dev/saarthi/internal/config"
	"github.com/saarthi-dev/saarthi/internal/fetch"
	"github.com/saarthi-dev/saarthi/internal/monitoring"
	"github.com/saarthi-dev/saarthi/internal/pipeline"
	"github.com/saarthi-dev/saarthi/internal/provider"
	"github.com/saarthi-dev/saarthi/internal/respond"
	"github.com/saarthi-dev/saarthi/internal/retrieval"
	"github.com/saarthi-dev/saarthi/internal/session"
	"github.com/saarthi-dev/saarthi/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the saarthi server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "saarthi version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	p, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}

	sink := monitoring.NewPrometheus()

	// Retrieval stage.
	embedder := retrieval.NewEmbedder(p, cfg.Retrieval.EmbedCacheLen, time.Duration(cfg.Retrieval.EmbedCacheTTL)*time.Second)
	retriever := retrieval.NewRetriever(embedder, retrieval.NewSQLiteStore(store), cfg.Retrieval.MinScore)

	// Fetch stage over the content cache.
	contentCache := cache.New(store, time.Duration(cfg.Cache.FreshnessHours)*time.Hour, sink)
	fetcher := fetch.New(contentCache, fetch.Config{
		AllowedHosts:     cfg.Fetch.AllowedHosts,
		Timeout:          time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Attempts:         cfg.Fetch.Attempts,
		BreakerThreshold: cfg.Fetch.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Fetch.BreakerCooldown) * time.Second,
	}, sink)

	// Generation stage.
	generator := respond.New(p, store.AllSchemeNames, respond.Config{
		Timeout:  time.Duration(cfg.Respond.TimeoutSecs) * time.Second,
		Attempts: cfg.Respond.Attempts,
	}, sink)

	// Sessions, with a periodic expiry sweep.
	sessions := session.NewManager(store, time.Duration(cfg.Session.TTLMinutes)*time.Minute)
	go sessions.RunSweeper(ctx, time.Duration(cfg.Session.SweepMinutes)*time.Minute)

	orchestrator := pipeline.New(store, retriever, fetcher, generator, sessions, pipeline.Config{
		TopK:          cfg.Retrieval.TopK,
		MinResults:    cfg.Fetch.MinResults,
		MinConfidence: cfg.Fetch.MinConfidence,
	})

	handler := api.NewHandler(api.Deps{Pipeline: orchestrator, Metrics: true})
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler,
	}

	if cfg.Server.MCP {
		mcpSrv := api.NewMCPServer(orchestrator)
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "saarthi listening on %s\n", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildProvider selects the model provider from config.
func buildProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider.Type {
	case "ollama":
		o := provider.NewOllama(cfg.Provider.Ollama.BaseURL, cfg.Provider.Ollama.ChatModel, cfg.Provider.Ollama.EmbedModel)
		if !o.IsRunning(ctx) {
			printWarning("Ollama is not responding at %s; requests will fail until it is up", cfg.Provider.Ollama.BaseURL)
		}
		return o, nil
	case "openai":
		return provider.NewOpenAI(provider.OpenAIConfig{
			BaseURL:    cfg.Provider.OpenAI.BaseURL,
			APIKeyEnv:  cfg.Provider.OpenAI.APIKeyEnv,
			ChatModel:  cfg.Provider.OpenAI.ChatModel,
			EmbedModel: cfg.Provider.OpenAI.EmbedModel,
		})
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
}
