package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const reloadDebounce = 200 * time.Millisecond

// Watch watches the config file with Viper (WatchConfig + OnConfigChange) and hot-reloads.
// Run in a goroutine. On reload, updates in-memory config and runs RegisterOnReload callbacks.
func Watch(ctx context.Context) {
	path := Path()
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		slog.Warn("config watch initial read failed", "path", path, "error", err)
		return
	}

	reload := func() {
		if ctx.Err() != nil {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			slog.Warn("config hot-reload load failed", "path", path, "error", err)
			return
		}
		Set(cfg)
		notifyReload(cfg)
		slog.Info("config hot-reloaded", "path", path)
	}

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	v.OnConfigChange(func(e fsnotify.Event) {
		if !relevant(e, path) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(reloadDebounce, reload)
	})
	v.WatchConfig()

	<-ctx.Done()
	mu.Lock()
	if debounce != nil {
		debounce.Stop()
	}
	mu.Unlock()
}

// relevant reports whether e rewrote the file at path. Atomic writes show up
// as Create (rename onto the target) rather than Write.
func relevant(e fsnotify.Event, path string) bool {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return false
	}
	return filepath.Clean(e.Name) == filepath.Clean(path)
}
