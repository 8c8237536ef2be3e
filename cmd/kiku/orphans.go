package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperjump/kiku/internal/cli"
	"github.com/hyperjump/kiku/internal/storage"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans [source...]",
	Short: "List point ids earlier ingestions wrote that the latest run did not rewrite",
	Long: `Reports orphaned points per source using the ingestion ledger. Nothing is
deleted; remove the ids from the collection yourself if they are stale.`,
	RunE: runOrphans,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded ingestion runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	orphansCmd.Flags().StringP("output", "o", "text", "output format: text or json")
	historyCmd.Flags().StringP("output", "o", "text", "output format: text or json")
	historyCmd.Flags().String("source", "", "only runs of this source")
	historyCmd.Flags().Int("limit", 20, "maximum runs to list (0 = all)")
	rootCmd.AddCommand(orphansCmd, historyCmd)
}

// openLedger opens just the ledger; these commands never touch the vector store.
func openLedger(cmd *cobra.Command) (*storage.SQLiteLedger, cli.OutputFormat, error) {
	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return nil, "", err
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	ledger, err := storage.NewSQLiteLedger(cfg.Ledger.DatabasePath)
	if err != nil {
		return nil, "", err
	}
	return ledger, format, nil
}

func runOrphans(cmd *cobra.Command, args []string) error {
	ledger, format, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer ledger.Close()

	ctx := cmd.Context()
	sources := args
	if len(sources) == 0 {
		if sources, err = ledger.Sources(ctx); err != nil {
			return err
		}
	}
	orphans := make(map[string][]string, len(sources))
	for _, src := range sources {
		ids, err := ledger.Orphans(ctx, src)
		if err != nil {
			return err
		}
		orphans[src] = ids
	}
	return cli.WriteOrphans(cmd.OutOrStdout(), orphans, format)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ledger, format, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer ledger.Close()

	source, _ := cmd.Flags().GetString("source")
	limit, _ := cmd.Flags().GetInt("limit")
	recs, err := ledger.ListIngestions(cmd.Context(), source, limit)
	if err != nil {
		return err
	}
	return cli.WriteHistory(cmd.OutOrStdout(), recs, format)
}
