package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/config"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/interceptor"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/prompts"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/settings"
)

var (
	initForce         bool
	rewriteTarget     string
	rewriteNavigation string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config with a fresh API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Path()
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.CreateFromExample(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the instruction block that would be prepended",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		snap := cfg.Snapshot()
		out := cmd.OutOrStdout()
		if !snap.Active() {
			fmt.Fprintln(out, "(injection inactive: disabled or no instructions)")
			return nil
		}
		if err := settings.Validate(snap); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
		fmt.Fprintln(out, prompts.BuildBlock(snap.Instructions))
		return nil
	},
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Run a request body from stdin through the rewrite pipeline",
	Long: `Reads a form-encoded request body on stdin, runs it through the same
pipeline the gateway uses and prints the body that would be forwarded.
The outcome is printed to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}

		cell := &settings.Cell{}
		if err := cell.Publish(cfg.Snapshot()); err != nil {
			return err
		}
		ic := interceptor.New(cell, interceptor.Options{
			Marker:         cfg.Injection.Marker,
			PersonaSegment: cfg.Injection.PersonaSegment,
		})
		ic.OnInjectionFailed(func(evt interceptor.FailureEvent) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s (%s)\n", prompts.Toast(evt.Error, cfg.Locale), evt.Error)
		})

		body := strings.TrimRight(string(data), "\r\n")
		out, outcome := ic.Transmit(rewriteTarget, rewriteNavigation, body)
		fmt.Fprintln(cmd.OutOrStdout(), out)
		fmt.Fprintf(cmd.ErrOrStderr(), "outcome: %s\n", outcome)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gsp v%s\n", version)
	},
}

// loadConfig reads the config file, falling back to defaults when there is none.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	return cfg, err
}
