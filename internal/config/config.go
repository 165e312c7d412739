// Package config loads the tiered memory configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. TIERED_MEMORY_DB_PATH.
const Prefix = "TIERED_MEMORY"

// Unsupported remote operation policies.
const (
	// PolicyFallback treats an unsupported remote operation like an outage.
	PolicyFallback = "fallback"
	// PolicyFail surfaces a NotSupported error to the caller.
	PolicyFail = "fail"
)

// Config holds the configuration for the memory client and CLI.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"tiered-memory"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Local fallback store. Empty means ~/.tiered-memory/memory.db.
	DBPath       string `envconfig:"DB_PATH" default:""`
	LocalEnabled bool   `envconfig:"LOCAL_ENABLED" default:"true"`

	// Remote memory service. Remote is skipped unless both are set.
	RemoteURL     string        `envconfig:"REMOTE_URL" default:""`
	RemoteAPIKey  string        `envconfig:"REMOTE_API_KEY" default:""`
	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"5s"`
	RemoteRetries int           `envconfig:"REMOTE_RETRIES" default:"0"`
	// Remote operations the service does not implement, e.g. "update,delete".
	RemoteDisabledOps []string `envconfig:"REMOTE_DISABLED_OPS" default:""`
	UnsupportedPolicy string   `envconfig:"UNSUPPORTED_POLICY" default:"fallback"`

	// YAML permission table. Empty means the built-in table.
	PermissionsFile string `envconfig:"PERMISSIONS_FILE" default:""`
}

// New loads configuration from the environment and resolves defaults.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveDefaults validates enumerated settings and fills derived defaults.
func (c *Config) ResolveDefaults() error {
	switch c.UnsupportedPolicy {
	case "":
		c.UnsupportedPolicy = PolicyFallback
	case PolicyFallback, PolicyFail:
	default:
		return fmt.Errorf("unsupported UNSUPPORTED_POLICY: %s", c.UnsupportedPolicy)
	}

	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("REMOTE_TIMEOUT must be positive, got %s", c.RemoteTimeout)
	}
	if c.RemoteRetries < 0 {
		return fmt.Errorf("REMOTE_RETRIES must not be negative, got %d", c.RemoteRetries)
	}

	ops := c.RemoteDisabledOps[:0]
	for _, op := range c.RemoteDisabledOps {
		op = strings.ToLower(strings.TrimSpace(op))
		if op == "" {
			continue
		}
		switch op {
		case "create", "search", "get", "update", "delete", "list":
		default:
			return fmt.Errorf("unknown remote operation in REMOTE_DISABLED_OPS: %s", op)
		}
		ops = append(ops, op)
	}
	c.RemoteDisabledOps = ops

	if c.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		c.DBPath = filepath.Join(home, ".tiered-memory", "memory.db")
	}
	return nil
}

// RemoteConfigured reports whether a remote service is configured.
func (c *Config) RemoteConfigured() bool {
	return c.RemoteURL != "" && c.RemoteAPIKey != ""
}
