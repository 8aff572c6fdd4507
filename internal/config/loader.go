package config

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/ledger"
)

const (
	DefaultPort             = 19810
	DefaultUpstream         = "https://gemini.google.com"
	DefaultNavigationHeader = "Referer"
	DefaultMarker           = "StreamGenerate"
	DefaultPersonaSegment   = "/gem/"
	DefaultResync           = "@every 5m"
	DefaultLocale           = "en"
)

var current atomic.Pointer[Config]

var (
	onReloadMu        sync.Mutex
	onReloadCallbacks []func(*Config)
)

// Get returns the current in-memory config (hot-reloaded when the file changes).
func Get() *Config { return current.Load() }

// Set sets the current in-memory config. Used at startup, by the file watcher and by the bridge.
func Set(c *Config) {
	if c != nil {
		current.Store(c)
	}
}

// RegisterOnReload registers a callback that runs after config is hot-reloaded.
func RegisterOnReload(fn func(*Config)) {
	onReloadMu.Lock()
	defer onReloadMu.Unlock()
	onReloadCallbacks = append(onReloadCallbacks, fn)
}

func notifyReload(cfg *Config) {
	onReloadMu.Lock()
	cb := make([]func(*Config), len(onReloadCallbacks))
	copy(cb, onReloadCallbacks)
	onReloadMu.Unlock()
	for _, fn := range cb {
		fn(cfg)
	}
}

//go:embed config.example.yaml
var exampleConfigBytes []byte

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyLoadDefaults(&cfg)
	return &cfg, nil
}

func applyLoadDefaults(cfg *Config) {
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Upstream == "" {
		cfg.Gateway.Upstream = DefaultUpstream
	}
	if cfg.Gateway.NavigationHeader == "" {
		cfg.Gateway.NavigationHeader = DefaultNavigationHeader
	}
	if cfg.Injection.Instructions == nil {
		cfg.Injection.Instructions = []string{}
	}
	if cfg.Injection.Marker == "" {
		cfg.Injection.Marker = DefaultMarker
	}
	if cfg.Injection.PersonaSegment == "" {
		cfg.Injection.PersonaSegment = DefaultPersonaSegment
	}
	if cfg.Injection.LedgerCapacity <= 0 {
		cfg.Injection.LedgerCapacity = ledger.DefaultCapacity
	}
	if cfg.Bridge.Resync == "" {
		cfg.Bridge.Resync = DefaultResync
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
}

// LoadFromExample parses the embedded config.example.yaml.
func LoadFromExample() (*Config, error) {
	cfg, err := parse(exampleConfigBytes)
	if err != nil {
		return nil, fmt.Errorf("example config: %w", err)
	}
	return cfg, nil
}

func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// ResolveHome returns the GSP_HOME directory.
// Priority: GSP_HOME env > ~/.gsp/
func ResolveHome() string {
	if home := os.Getenv("GSP_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".gsp"
	}
	return filepath.Join(userHome, ".gsp")
}

// ResolveConfigPath finds the config file.
// Priority: --config flag > GSP_HOME/config.yaml
func ResolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return filepath.Join(ResolveHome(), "config.yaml")
}

var pathOverride atomic.Pointer[string]

// SetPath pins the process-wide config path, e.g. from a --config flag.
func SetPath(p string) {
	if p != "" {
		pathOverride.Store(&p)
	}
}

// Path returns the process-wide config file path.
// All components should use this instead of receiving the path by parameter.
func Path() string {
	if p := pathOverride.Load(); p != nil {
		return *p
	}
	return ResolveConfigPath("")
}

// GenerateToken returns a random hex token (32 bytes = 64 chars) for gateway auth.
func GenerateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "fallback-token-please-set-gateway-auth-token-in-config"
	}
	return hex.EncodeToString(b)
}

// CreateFromExample writes the embedded config.example.yaml to targetPath with the token placeholder replaced by a generated token.
func CreateFromExample(targetPath string) error {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	token := GenerateToken()
	content := strings.ReplaceAll(string(exampleConfigBytes), "${GSP_TOKEN}", token)
	if err := os.WriteFile(targetPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Write marshals cfg to YAML and replaces path with it. The file is written
// beside the target and renamed so the watcher never reads a partial file.
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
