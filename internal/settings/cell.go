package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Cell is the location the config bridge publishes into and the interceptor
// reads from. It holds the serialized snapshot and a readiness flag; until the
// first successful Publish the configuration is unknown, which is different
// from a configuration that says disabled.
type Cell struct {
	payload atomic.Pointer[string]
	ready   atomic.Bool
}

// Publish serializes s into the cell and marks it ready.
func (c *Cell) Publish(s Snapshot) error {
	if s.Instructions == nil {
		s.Instructions = []string{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	raw := string(data)
	c.payload.Store(&raw)
	c.ready.Store(true)
	return nil
}

// Load decodes the published snapshot. ok is false while the cell is not ready
// or when its payload cannot be decoded.
func (c *Cell) Load() (s Snapshot, ok bool) {
	if !c.ready.Load() {
		return Snapshot{}, false
	}
	raw := c.payload.Load()
	if raw == nil {
		return Snapshot{}, false
	}
	if err := json.Unmarshal([]byte(*raw), &s); err != nil {
		slog.Warn("published settings unreadable", "error", err)
		return Snapshot{}, false
	}
	return s, true
}

// Ready reports whether anything was published yet.
func (c *Cell) Ready() bool { return c.ready.Load() }

// Raw returns the serialized payload as published.
func (c *Cell) Raw() (string, bool) {
	raw := c.payload.Load()
	if raw == nil || !c.ready.Load() {
		return "", false
	}
	return *raw, true
}
