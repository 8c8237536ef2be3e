package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/cli"
	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection info, corpus statistics and ledger size",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringP("output", "o", "text", "output format: text or json")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx := cmd.Context()
	report := &cli.StatusReport{Stats: components.Scanner.Scan(ctx)}
	if components.Store != nil {
		if info, err := components.Store.Info(ctx); err == nil {
			report.Collection = info
		} else {
			logger.Warn("collection info unavailable", zap.Error(err))
		}
	}
	paths := []string{cfg.Ledger.DatabasePath}
	if cfg.Store.Type == config.StoreSQLite {
		paths = append(paths, cfg.Store.Path)
	}
	if n, err := storage.DatabaseBytes(paths...); err == nil {
		report.LedgerBytes = n
	} else {
		logger.Warn("disk usage unavailable", zap.Error(err))
	}
	return cli.WriteStatus(cmd.OutOrStdout(), report, format)
}
