package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"workhub/internal/domain"
)

// Config models workhub.yml.
type Config struct {
	Database  Database  `yaml:"database"`
	Lifecycle Lifecycle `yaml:"lifecycle"`
	Server    Server    `yaml:"server"`
	Webhooks  []Webhook `yaml:"webhooks"`
}

type Database struct {
	// Driver is sqlite or postgres.
	Driver string `yaml:"driver"`
	// DSN is required for postgres. For sqlite an empty DSN means the workspace database file.
	DSN string `yaml:"dsn"`
}

type Lifecycle struct {
	ThreadMaxDepth  int   `yaml:"thread_max_depth"`
	ResolveMaxDepth int   `yaml:"resolve_max_depth"`
	Purge           Purge `yaml:"purge"`
}

type Purge struct {
	// IntervalSeconds drives the server purge ticker; 0 disables it.
	IntervalSeconds int            `yaml:"interval_seconds"`
	GraceDays       map[string]int `yaml:"grace_days"`
}

type Server struct {
	Addr        string   `yaml:"addr"`
	BasePath    string   `yaml:"base_path"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// IsEnabled defaults to true when enabled is omitted.
func (w Webhook) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// Wants reports whether the hook subscribes to an event type. An empty list
// or "*" subscribes to everything; "comment.*" matches by prefix.
func (w Webhook) Wants(evtType string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		switch {
		case e == "*" || e == evtType:
			return true
		case strings.HasSuffix(e, ".*") && strings.HasPrefix(evtType, strings.TrimSuffix(e, "*")):
			return true
		}
	}
	return false
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with wh config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Lifecycle.ThreadMaxDepth < 1 {
		return fmt.Errorf("config.lifecycle.thread_max_depth must be at least 1")
	}
	if c.Lifecycle.ResolveMaxDepth < 1 {
		return fmt.Errorf("config.lifecycle.resolve_max_depth must be at least 1")
	}
	if c.Lifecycle.Purge.IntervalSeconds < 0 {
		return fmt.Errorf("config.lifecycle.purge.interval_seconds must not be negative")
	}
	for typ, days := range c.Lifecycle.Purge.GraceDays {
		if _, err := domain.ParseEntityType(typ); err != nil {
			return fmt.Errorf("config.lifecycle.purge.grace_days: %w", err)
		}
		if days < 0 {
			return fmt.Errorf("grace window for %s must not be negative", typ)
		}
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for i, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if h.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
		for _, e := range h.Events {
			if e == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event type", i)
			}
		}
	}
	return nil
}

// GraceDurations converts grace_days into per-type durations. Types with 0
// days are left out and therefore never purged.
func (c *Config) GraceDurations() map[domain.EntityType]time.Duration {
	out := map[domain.EntityType]time.Duration{}
	for typ, days := range c.Lifecycle.Purge.GraceDays {
		if days <= 0 {
			continue
		}
		out[domain.EntityType(typ)] = time.Duration(days) * 24 * time.Hour
	}
	return out
}

// PurgeInterval is zero when the ticker is disabled.
func (c *Config) PurgeInterval() time.Duration {
	return time.Duration(c.Lifecycle.Purge.IntervalSeconds) * time.Second
}

// GraceTypes lists the purgeable types sorted by name.
func (c *Config) GraceTypes() []string {
	var out []string
	for typ, days := range c.Lifecycle.Purge.GraceDays {
		if days > 0 {
			out = append(out, typ)
		}
	}
	sort.Strings(out)
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "workhub.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `database:
  driver: sqlite
  dsn: ""

lifecycle:
  thread_max_depth: 3
  resolve_max_depth: 10
  purge:
    interval_seconds: 0
    grace_days:
      comment: 30
      attachment: 30
      notification: 14
      activity: 90
      task: 90

server:
  addr: ":8080"
  base_path: /v1
  cors_origins: []

webhooks: []
`
