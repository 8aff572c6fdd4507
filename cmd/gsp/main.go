package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/config"
)

const version = "0.1.0"

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gsp",
	Short: "Gemini system prompt gateway",
	Long: `gsp sits between the browser and the Gemini web app and prepends your
standing instructions to the first message of every conversation.

Open http://localhost:<port>/app through the gateway instead of
gemini.google.com; manage instructions over the /api endpoints.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(logLevel); err != nil {
			return err
		}
		config.SetPath(configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $GSP_HOME/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug | info | warn | error")

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides gateway.port)")
	rewriteCmd.Flags().StringVar(&rewriteTarget, "target", "/_/BardChatUi/data/assistant.lamda.BardFrontendService/StreamGenerate", "Request URL")
	rewriteCmd.Flags().StringVar(&rewriteNavigation, "navigation", "https://gemini.google.com/app", "Page URL the request was sent from")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
