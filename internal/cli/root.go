package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	apiBaseURL string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}
	envAPI := os.Getenv("API_URL")

	cmd := &cobra.Command{
		Use:   "quiz-session-engine",
		Short: "Single-player quiz play-through engine with tiered session persistence",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&apiBaseURL, "api", envAPI, "answer submission API base URL (overrides config)")
	cmd.AddCommand(NewPlayCmd(&configPath, &apiBaseURL))
	cmd.AddCommand(NewResultsCmd(&configPath))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}
