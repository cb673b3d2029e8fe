package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "frameforge.yml"

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config models frameforge.yml.
type Config struct {
	Server        Server        `yaml:"server"`
	Pipeline      Pipeline      `yaml:"pipeline"`
	Notifications Notifications `yaml:"notifications"`
	Store         Store         `yaml:"store"`
	Log           Log           `yaml:"log"`
}

type Server struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

type Pipeline struct {
	MaxRevisions    int     `yaml:"max_revisions"`
	AnswerThreshold float64 `yaml:"answer_threshold"`
}

type Notifications struct {
	Workers            int           `yaml:"workers"`
	QueueSize          int           `yaml:"queue_size"`
	MaxAttempts        int           `yaml:"max_attempts"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	Timeout            time.Duration `yaml:"timeout"`
	AllowedURLPrefixes []string      `yaml:"allowed_url_prefixes"`
}

type Store struct {
	Driver    string `yaml:"driver"`
	Workspace string `yaml:"workspace"`
}

type Log struct {
	Level      string `yaml:"level"`
	Encoding   string `yaml:"encoding"`
	OutputPath string `yaml:"output_path"`
}

// Load reads and validates the config file in workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with frameforge config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if bp := c.Server.BasePath; bp != "" && (!strings.HasPrefix(bp, "/") || strings.HasSuffix(bp, "/")) {
		return fmt.Errorf("config.server.base_path must start with / and not end with / (got %q)", bp)
	}
	if c.Pipeline.MaxRevisions < 0 {
		return fmt.Errorf("config.pipeline.max_revisions must be >= 0")
	}
	if t := c.Pipeline.AnswerThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("config.pipeline.answer_threshold must be in (0, 1] (got %v)", t)
	}
	n := c.Notifications
	if n.Workers < 1 {
		return fmt.Errorf("config.notifications.workers must be >= 1")
	}
	if n.QueueSize < 1 {
		return fmt.Errorf("config.notifications.queue_size must be >= 1")
	}
	if n.MaxAttempts < 1 {
		return fmt.Errorf("config.notifications.max_attempts must be >= 1")
	}
	if n.BaseDelay <= 0 {
		return fmt.Errorf("config.notifications.base_delay must be positive")
	}
	if n.MaxDelay < n.BaseDelay {
		return fmt.Errorf("config.notifications.max_delay must be >= base_delay")
	}
	if n.Timeout <= 0 {
		return fmt.Errorf("config.notifications.timeout must be positive")
	}
	for _, prefix := range n.AllowedURLPrefixes {
		u, err := url.Parse(prefix)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.notifications.allowed_url_prefixes: %q is not an http(s) URL prefix", prefix)
		}
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.Store.Workspace) == "" {
			return fmt.Errorf("config.store.workspace is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("config.store.driver must be memory or sqlite (got %q)", c.Store.Driver)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error (got %q)", c.Log.Level)
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("config.log.encoding must be json or console (got %q)", c.Log.Encoding)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the defaults if the config file does not exist.
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

// Default returns the Config described by the default template.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
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

// YAML renders the config, e.g. for config show.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

pipeline:
  # Rejected refinements allowed per session; 0 disables the cap.
  max_revisions: 5
  # Share of required questions that must be answered before narrative analysis.
  answer_threshold: 0.8

notifications:
  workers: 2
  queue_size: 256
  max_attempts: 3
  base_delay: 1s
  max_delay: 8s
  timeout: 10s
  allowed_url_prefixes:
    - https://discord.com/api/webhooks/

store:
  # memory keeps sessions for the process lifetime; sqlite persists them.
  driver: memory
  workspace: .

log:
  level: info
  encoding: json
  output_path: stderr
`
