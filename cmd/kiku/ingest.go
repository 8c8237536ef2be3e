package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/cli"
	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/indexer"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/vector"
	"github.com/hyperjump/kiku/internal/watcher"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|directory>",
	Short: "Chunk, embed and upsert a document or a directory of documents",
	Long: `Ingests one file, or every matching file under a directory, into the
configured vector collection. Re-ingesting unchanged content overwrites the
same points.`,
	Example: `  kiku ingest manual.pdf
  kiku ingest --chunker semantic docs/
  kiku ingest --patterns "*.pdf,*.md" --show docs/
  kiku ingest --watch docs/`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.String("chunker", "", "chunker type: recursive or semantic (default from config)")
	f.Int("chunk-size", 0, "chunk size in characters, 100-5000 (default from config)")
	f.Int("chunk-overlap", 0, "chunk overlap in characters, < chunk size (default from config)")
	f.String("patterns", "", "comma-separated glob patterns for directories (default from config)")
	f.Bool("show", false, "print collection info after ingesting")
	f.Bool("watch", false, "keep watching the directory and re-ingest changed files")
	f.StringP("output", "o", "text", "output format: text or json")
	rootCmd.AddCommand(ingestCmd)
}

// chunkParamsFromFlags overlays explicitly set flags on the configured defaults.
func chunkParamsFromFlags(cmd *cobra.Command, defaults models.ChunkParams) models.ChunkParams {
	params := defaults
	if cmd.Flags().Changed("chunker") {
		v, _ := cmd.Flags().GetString("chunker")
		params.ChunkerType = models.ChunkerType(strings.ToLower(v))
	}
	if cmd.Flags().Changed("chunk-size") {
		params.ChunkSize, _ = cmd.Flags().GetInt("chunk-size")
	}
	if cmd.Flags().Changed("chunk-overlap") {
		params.ChunkOverlap, _ = cmd.Flags().GetInt("chunk-overlap")
	}
	return params
}

// splitPatterns parses a comma-separated pattern list, dropping blanks.
func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	params := chunkParamsFromFlags(cmd, cfg.Ingest.ChunkParams())
	if err := params.Validate(); err != nil {
		return err
	}
	patterns := cfg.Ingest.Patterns
	if v, _ := cmd.Flags().GetString("patterns"); v != "" {
		patterns = splitPatterns(v)
	}

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := args[0]
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !info.IsDir() {
		res, err := components.Indexer.IngestFile(ctx, target, params)
		if err != nil {
			return err
		}
		if format == cli.OutputJSON {
			if err := cli.WriteJSON(out, res); err != nil {
				return err
			}
		} else if res.Success {
			fmt.Fprintf(out, "Ingested %s: %d chunks into %s\n", filepath.Base(target), res.DocumentsProcessed, res.Collection)
		}
		if !res.Success {
			return fmt.Errorf("ingestion failed: %s", res.Error)
		}
	} else {
		files, err := indexer.CollectFiles(target, patterns)
		if err != nil {
			return err
		}
		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Ingesting"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		res, err := components.Indexer.IngestDirectory(ctx, target, patterns, params, func(o *models.FileOutcome) {
			bar.Describe(filepath.Base(o.Path))
			_ = bar.Add(1)
		})
		_ = bar.Finish()
		if err != nil {
			return err
		}
		if err := cli.WriteDirectoryResult(out, res, format); err != nil {
			return err
		}
	}

	if show, _ := cmd.Flags().GetBool("show"); show && components.Store != nil {
		if err := showCollection(ctx, components.Store, out); err != nil {
			logger.Warn("collection info unavailable", zap.Error(err))
		}
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		if !info.IsDir() {
			return fmt.Errorf("--watch needs a directory")
		}
		watchCfg := cfg.Watch
		watchCfg.Directories = []string{target}
		return watchUntilDone(ctx, watchCfg, components, params, false, logger)
	}
	return nil
}

func showCollection(ctx context.Context, store vector.Store, out io.Writer) error {
	info, err := store.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	cli.WriteCollectionInfo(out, info)
	return nil
}

// watchUntilDone runs a watcher over watchCfg until ctx is cancelled. With sync,
// files already present are ingested first.
func watchUntilDone(ctx context.Context, watchCfg config.WatchConfig, c *Components, params models.ChunkParams, sync bool, logger *zap.Logger) error {
	w := watcher.New(watchCfg, c.Indexer, params,
		watcher.WithLogger(logger.Named("watcher")),
		watcher.WithResultFunc(logWatchResult(logger)))
	if err := w.Start(ctx); err != nil {
		return err
	}
	if sync {
		w.SyncExisting(ctx)
	}
	logger.Info("watching for changes, press Ctrl+C to stop", zap.Strings("directories", w.Directories()))
	<-ctx.Done()
	w.Stop()
	return nil
}
