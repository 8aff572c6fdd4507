package config

import (
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/settings"
)

type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway" json:"gateway"`
	Injection InjectionConfig `yaml:"injection" json:"injection"`
	Bridge    BridgeConfig    `yaml:"bridge" json:"bridge"`
	Locale    string          `yaml:"locale" json:"locale"` // en | ko
}

type GatewayConfig struct {
	Port     int        `yaml:"port" json:"port"`
	Upstream string     `yaml:"upstream" json:"upstream"`
	Auth     AuthConfig `yaml:"auth" json:"auth"`
	// NavigationHeader names the request header that carries the page URL.
	NavigationHeader string `yaml:"navigationHeader" json:"navigationHeader"`
}

type AuthConfig struct {
	Token string `yaml:"token" json:"token"`
}

type InjectionConfig struct {
	// Enabled is a pointer so that a missing key means on.
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Instructions   []string `yaml:"instructions" json:"instructions"`
	Marker         string   `yaml:"marker" json:"marker"`
	PersonaSegment string   `yaml:"personaSegment" json:"personaSegment"`
	LedgerCapacity int      `yaml:"ledgerCapacity" json:"ledgerCapacity"`
}

type BridgeConfig struct {
	Resync string `yaml:"resync" json:"resync"` // cron schedule; empty disables
}

// IsEnabled reports injection.enabled, defaulting to true.
func (c InjectionConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Snapshot extracts the part of the config the interceptor reads.
func (c *Config) Snapshot() settings.Snapshot {
	return settings.Snapshot{
		Enabled:      c.Injection.IsEnabled(),
		Instructions: append([]string{}, c.Injection.Instructions...),
	}
}

// WithSnapshot returns a copy of c carrying s as its injection settings.
func (c *Config) WithSnapshot(s settings.Snapshot) *Config {
	out := *c
	enabled := s.Enabled
	out.Injection.Enabled = &enabled
	out.Injection.Instructions = append([]string{}, s.Instructions...)
	return &out
}

func DefaultConfig() *Config {
	cfg := &Config{}
	applyLoadDefaults(cfg)
	return cfg
}
