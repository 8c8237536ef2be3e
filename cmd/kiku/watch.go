package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [directory...]",
	Short: "Watch directories and re-ingest documents when they change",
	Long: `Watches the given directories, or watch.directories from the config, and
ingests created or modified documents with the configured chunk parameters.
Removed files are only logged; their points stay in the collection.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("sync", false, "ingest existing files before watching")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	watchCfg := cfg.Watch
	if len(args) > 0 {
		watchCfg.Directories = args
	}

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sync, _ := cmd.Flags().GetBool("sync")
	return watchUntilDone(ctx, watchCfg, components, cfg.Ingest.ChunkParams(), sync, logger)
}
