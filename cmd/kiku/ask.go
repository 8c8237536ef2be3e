package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kiku/internal/eval"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the ingested documents",
	Long: `Answers a question using only retrieved passages. Corpus statistics
questions ("¿Cuántos archivos hay?") are answered from a collection scan.
Multi-word questions work with or without quotes.`,
	Example: `  kiku ask ¿Qué dice el manual sobre la garantía?
  kiku ask --server http://localhost:8000 "how many files"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().String("server", "", "ask a running server instead of answering in-process")
	rootCmd.AddCommand(askCmd)
}

// buildQuestion joins all positional args with spaces so quoting is optional.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := buildQuestion(args)
	if question == "" {
		return fmt.Errorf("question is required")
	}
	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL != "" {
		answer, err := eval.NewRemoteAsker(serverURL, 2*time.Minute).Route(cmd.Context(), question)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
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

	answer, err := components.Router.Route(cmd.Context(), question)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
