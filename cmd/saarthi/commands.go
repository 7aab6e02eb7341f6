package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/saarthi-dev/saarthi/internal/config"
	"github.com/saarthi-dev/saarthi/internal/ingest"
	"github.com/saarthi-dev/saarthi/internal/provider"
	"github.com/saarthi-dev/saarthi/internal/retrieval"
	"github.com/saarthi-dev/saarthi/internal/storage"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Ingest scheme files into the database",
	Long: `Ingest scheme files into the database.

Reads every .json scheme file under the given directory, embeds each
scheme, and upserts it into the store. A record may reference a PDF
brochure whose text is folded into the scheme description.

Example:
  saarthi ingest ./data/schemes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		p, err := buildProvider(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		embedder := retrieval.NewEmbedder(p, cfg.Retrieval.EmbedCacheLen, time.Duration(cfg.Retrieval.EmbedCacheTTL)*time.Second)

		n, err := ingest.New(store, embedder).IngestDir(cmd.Context(), args[0])
		if err != nil {
			printError("ingest failed: %v", err)
			return err
		}
		printSuccess("ingested %d schemes", n)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show saarthi system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			printError("storage: %v", err)
			return err
		}
		defer store.Close()

		count, err := store.CountSchemes()
		if err != nil {
			return fmt.Errorf("counting schemes: %w", err)
		}
		printStatus("schemes", "%d", count)
		printStatus("provider", "%s", cfg.Provider.Type)
		printStatus("data dir", "%s", cfg.Storage.DataDir)

		if cfg.Provider.Type == "ollama" {
			o := provider.NewOllama(cfg.Provider.Ollama.BaseURL, cfg.Provider.Ollama.ChatModel, cfg.Provider.Ollama.EmbedModel)
			if o.IsRunning(cmd.Context()) {
				printSuccess("ollama reachable at %s", cfg.Provider.Ollama.BaseURL)
			} else {
				printWarning("ollama not responding at %s", cfg.Provider.Ollama.BaseURL)
			}
		}

		if up, err := serverHealthy(cmd.Context(), cfg.Server.Addr); err == nil && up {
			printSuccess("server healthy on %s", cfg.Server.Addr)
		} else {
			printWarning("server not running on %s", cfg.Server.Addr)
		}
		return nil
	},
}

func serverHealthy(ctx context.Context, addr string) (bool, error) {
	url := "http://" + addr + "/health"
	if addr != "" && addr[0] == ':' {
		url = "http://127.0.0.1" + addr + "/health"
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
