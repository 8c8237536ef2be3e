package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/server"
	"github.com/hyperjump/kiku/internal/watcher"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API (and the directory watcher when directories are configured)",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().String("host", "", "listen host (overrides config)")
	serverCmd.Flags().Int("port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watchSvc = watcher.New(cfg.Watch, components.Indexer, cfg.Ingest.ChunkParams(),
			watcher.WithLogger(logger.Named("watcher")),
			watcher.WithResultFunc(logWatchResult(logger)))
		if err := watchSvc.Start(ctx); err != nil {
			return err
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(server.Deps{
		Ingestion: components.Indexer,
		Asker:     components.Router,
		Stats:     components.Scanner,
		Ledger:    components.Ledger,
	}, &cfg.Server, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func logWatchResult(logger *zap.Logger) watcher.ResultFunc {
	return func(path string, res *models.IngestResult, err error) {
		switch {
		case err != nil:
			logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
		case !res.Success:
			logger.Warn("watch ingest failed", zap.String("path", path), zap.String("error", res.Error))
		default:
			logger.Info("watch ingested", zap.String("path", path), zap.Int("chunks", res.DocumentsProcessed))
		}
	}
}
