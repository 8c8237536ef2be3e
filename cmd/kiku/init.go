package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kiku/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with every default filled in",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of kiku",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "kiku version %s\n", version)
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd, versionCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = defaultConfigName
	}
	if force, _ := cmd.Flags().GetBool("force"); !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	cfg := config.DefaultConfig()
	cfg.Server.UploadDir = "./uploads"
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s. Set QDRANT_URL, QDRANT_API_KEY, QDRANT_COLLECTION and OPENAI_API_KEY in the environment or a .env file.\n", path)
	return nil
}
