package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/cli"
	"github.com/hyperjump/kiku/internal/eval"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Measure answer and abstention rates over JSONL question sets",
	Args:  cobra.NoArgs,
	RunE:  runEval,
}

func init() {
	f := evalCmd.Flags()
	f.String("answerable", "eval/answerable.jsonl", "questions the documents can answer")
	f.String("unanswerable", "eval/unanswerable.jsonl", "questions that should get the abstention sentence")
	f.String("report", "eval/report.json", "report output path")
	f.String("server", "", "evaluate a running server via /rag/invoke instead of in-process")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	answerablePath, _ := cmd.Flags().GetString("answerable")
	unanswerablePath, _ := cmd.Flags().GetString("unanswerable")
	reportPath, _ := cmd.Flags().GetString("report")
	serverURL, _ := cmd.Flags().GetString("server")

	answerable, err := eval.LoadQuestions(answerablePath)
	if err != nil {
		return err
	}
	unanswerable, err := eval.LoadQuestions(unanswerablePath)
	if err != nil {
		return err
	}

	var asker eval.Asker
	if serverURL != "" {
		asker = eval.NewRemoteAsker(serverURL, time.Minute)
	} else {
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			return err
		}
		defer components.Close()
		asker = components.Router
	}

	report, err := eval.NewEvaluator(asker, cfg.Retrieval.AbstentionText, logger.Named("eval")).
		Run(cmd.Context(), answerable, unanswerable)
	if err != nil {
		return err
	}
	if err := eval.WriteReport(reportPath, report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Info("report written", zap.String("path", reportPath))
	return cli.WriteJSON(cmd.OutOrStdout(), report)
}
