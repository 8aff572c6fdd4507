package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/bridge"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/config"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/gateway"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/interceptor"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/settings"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := config.Path()
	slog.Info("gsp starting", "version", version, "home", config.Home(), "config", path)

	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config not found, using defaults", "path", path, "hint", "run `gsp init`")
		cfg = config.DefaultConfig()
	} else if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Gateway.Port = servePort
	}
	config.Set(cfg)

	cell := &settings.Cell{}
	br := bridge.New(cell, path)
	if err := br.Start(ctx, cfg.Bridge.Resync); err != nil {
		return err
	}
	go config.Watch(ctx)

	ic := interceptor.New(cell, interceptor.Options{
		Marker:           cfg.Injection.Marker,
		PersonaSegment:   cfg.Injection.PersonaSegment,
		LedgerCapacity:   cfg.Injection.LedgerCapacity,
		NavigationHeader: cfg.Gateway.NavigationHeader,
	})

	srv, err := gateway.NewServer(cfg, ic, br, nil)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	slog.Info("gsp stopped", "outcomes", ic.Stats())
	return nil
}
