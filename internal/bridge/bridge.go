// Package bridge keeps the settings cell in step with the config file. It
// publishes at startup, after every hot reload and on a resync schedule, and
// it is the only writer of the injection section of the file.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/config"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/settings"
)

// Publisher receives every snapshot the bridge syncs. *settings.Cell implements it.
type Publisher interface {
	Publish(settings.Snapshot) error
}

// Trigger says what caused a publish.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerReload  Trigger = "reload"
	TriggerResync  Trigger = "resync"
	TriggerEdit    Trigger = "edit"
)

// Status describes the last publish.
type Status struct {
	LastSync  time.Time `json:"lastSync"`
	Trigger   Trigger   `json:"trigger,omitempty"`
	Publishes int64     `json:"publishes"`
	LastError string    `json:"lastError,omitempty"`
}

type Bridge struct {
	path string
	pub  Publisher

	// mu serializes edits and syncs so a resync never interleaves with a save.
	mu     sync.Mutex
	status Status
}

// New returns a bridge that owns the config file at path.
func New(pub Publisher, path string) *Bridge {
	return &Bridge{path: path, pub: pub}
}

// Sync publishes cfg's injection settings. Instructions that break the editor
// limits are still published: the limits guard edits, not hand-written files.
func (b *Bridge) Sync(cfg *config.Config, trigger Trigger) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publish(cfg.Snapshot(), trigger)
}

func (b *Bridge) publish(snap settings.Snapshot, trigger Trigger) error {
	if err := settings.Validate(snap); err != nil {
		slog.Warn("published instructions exceed editor limits", "error", err)
	}
	err := b.pub.Publish(snap)
	b.status.LastSync = time.Now()
	b.status.Trigger = trigger
	if err != nil {
		b.status.LastError = err.Error()
		return fmt.Errorf("publish settings: %w", err)
	}
	b.status.Publishes++
	b.status.LastError = ""
	slog.Debug("settings published", "trigger", trigger, "enabled", snap.Enabled, "instructions", len(snap.Instructions))
	return nil
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Start publishes the current config, subscribes to hot reloads and runs the
// resync schedule until ctx is done. An empty schedule disables resync.
func (b *Bridge) Start(ctx context.Context, schedule string) error {
	cfg, err := b.load()
	if err != nil {
		return err
	}
	config.Set(cfg)
	if err := b.Sync(cfg, TriggerStartup); err != nil {
		return err
	}

	config.RegisterOnReload(func(c *config.Config) {
		if ctx.Err() != nil {
			return
		}
		if err := b.Sync(c, TriggerReload); err != nil {
			slog.Warn("settings publish after reload failed", "error", err)
		}
	})

	if schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", schedule, err)
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, b.resync); err != nil {
		return fmt.Errorf("schedule resync: %w", err)
	}
	c.Start()
	slog.Info("settings resync scheduled", "schedule", schedule)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

func (b *Bridge) resync() {
	cfg, err := config.Load(b.path)
	if err != nil {
		slog.Warn("settings resync read failed", "path", b.path, "error", err)
		return
	}
	config.Set(cfg)
	if err := b.Sync(cfg, TriggerResync); err != nil {
		slog.Warn("settings resync failed", "error", err)
	}
}

// load reads the file; a missing file yields the defaults.
func (b *Bridge) load() (*config.Config, error) {
	cfg, err := config.Load(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	return cfg, err
}

// Settings returns what the file currently says.
func (b *Bridge) Settings() (settings.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cfg, err := b.load()
	if err != nil {
		return settings.Snapshot{}, err
	}
	return cfg.Snapshot(), nil
}

// SetEnabled toggles injection.
func (b *Bridge) SetEnabled(enabled bool) (settings.Snapshot, error) {
	return b.update(func(s settings.Snapshot) (settings.Snapshot, error) {
		s.Enabled = enabled
		return s, nil
	})
}

// AddInstruction appends text after trimming it.
func (b *Bridge) AddInstruction(text string) (settings.Snapshot, error) {
	return b.update(func(s settings.Snapshot) (settings.Snapshot, error) {
		text, err := settings.NormalizeInstruction(text)
		if err != nil {
			return s, err
		}
		if len(s.Instructions) >= settings.MaxInstructions {
			return s, settings.ErrTooManyInstructions
		}
		s.Instructions = append(s.Instructions, text)
		return s, nil
	})
}

// RemoveInstruction deletes the instruction at index.
func (b *Bridge) RemoveInstruction(index int) (settings.Snapshot, error) {
	return b.update(func(s settings.Snapshot) (settings.Snapshot, error) {
		if index < 0 || index >= len(s.Instructions) {
			return s, fmt.Errorf("%w: %d", settings.ErrNoSuchInstruction, index)
		}
		s.Instructions = append(s.Instructions[:index], s.Instructions[index+1:]...)
		return s, nil
	})
}

// Replace overwrites both settings at once.
func (b *Bridge) Replace(next settings.Snapshot) (settings.Snapshot, error) {
	return b.update(func(settings.Snapshot) (settings.Snapshot, error) {
		out := settings.Snapshot{Enabled: next.Enabled, Instructions: make([]string, 0, len(next.Instructions))}
		for _, text := range next.Instructions {
			text, err := settings.NormalizeInstruction(text)
			if err != nil {
				return out, err
			}
			out.Instructions = append(out.Instructions, text)
		}
		return out, nil
	})
}

// update applies fn to the file's settings, validates, saves and publishes.
// Nothing is written or published when fn or validation fails.
func (b *Bridge) update(fn func(settings.Snapshot) (settings.Snapshot, error)) (settings.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cfg, err := b.load()
	if err != nil {
		return settings.Snapshot{}, err
	}
	snap, err := fn(cfg.Snapshot())
	if err != nil {
		return settings.Snapshot{}, err
	}
	if err := settings.Validate(snap); err != nil {
		return settings.Snapshot{}, err
	}

	next := cfg.WithSnapshot(snap)
	if err := config.Write(b.path, next); err != nil {
		return settings.Snapshot{}, err
	}
	config.Set(next)
	if err := b.publish(snap, TriggerEdit); err != nil {
		return settings.Snapshot{}, err
	}
	return snap.Clone(), nil
}
