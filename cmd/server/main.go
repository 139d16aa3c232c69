// Command server runs the sentence-indexed ANN search service: it loads
// configuration from the environment, restores the index snapshot (if any),
// and serves the HTTP surface.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
	"github.com/embedsvc/sentencehnsw/pkg/config"
	"github.com/embedsvc/sentencehnsw/pkg/embedder"
	"github.com/embedsvc/sentencehnsw/pkg/httpapi"
	"github.com/embedsvc/sentencehnsw/pkg/index"
	"github.com/embedsvc/sentencehnsw/pkg/logging"
	"github.com/embedsvc/sentencehnsw/pkg/metastore"
	"github.com/embedsvc/sentencehnsw/pkg/pipeline"
	"github.com/embedsvc/sentencehnsw/pkg/snapshot"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("sentencehnsw-server: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewStd(logging.LevelInfo)

	idx := index.New(cfg.Dimensions, 16, 200)
	switch err := snapshot.Restore(idx, cfg.HNSWPath); {
	case err == nil:
		logger.Info("restored index snapshot", "path", cfg.HNSWPath, "size", idx.Size())
	case errors.Is(err, apperr.ErrNotFound):
		logger.Info("no index snapshot found, starting empty", "path", cfg.HNSWPath)
	case errors.Is(err, apperr.ErrCorrupt):
		logger.Warn("index snapshot is corrupt, starting empty", "path", cfg.HNSWPath, "error", err)
	default:
		return err
	}

	ctx := context.Background()
	store, err := metastore.Open(ctx, cfg.SQLitePath, cfg.Dimensions, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	embed, closeEmbedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	if closeEmbedder != nil {
		defer closeEmbedder()
	}

	p := pipeline.New(idx, store, embed, cfg.InsertThreshold, cfg.Dimensions, logger)
	server := httpapi.New(p, idx, store, cfg.HNSWPath, cfg.Dimensions, cfg.MaxBodyBytes, logger)

	httpServer := &http.Server{
		Addr:    cfg.Host,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "host", cfg.Host)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildEmbedder(cfg config.Config) (embedder.Embedder, func(), error) {
	switch cfg.EmbedProvider {
	case config.ProviderLocal:
		local, err := embedder.NewLocalONNX(cfg.ONNXLibraryPath, cfg.Dimensions)
		if err != nil {
			return nil, nil, err
		}
		return local, func() { local.Close() }, nil
	default:
		remote := embedder.NewRemoteAPI(cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.EmbedBaseURL, cfg.Dimensions)
		return remote, nil, nil
	}
}
