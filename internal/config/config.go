// Package config loads agent-convo settings from a YAML file, a .env file
// and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-convo/internal/kv"
	"github.com/rcliao/agent-convo/internal/logger"
	"github.com/rcliao/agent-convo/internal/mirror"
)

// Config is the full application configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Reply   ReplyConfig   `yaml:"reply"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects the persistence mirror backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // sqlite|pebble|memory
	Path    string `yaml:"path"`
	Key     string `yaml:"key"`
}

// ReplyConfig controls synthesized replies.
type ReplyConfig struct {
	Delay        Duration `yaml:"delay"`
	SeedGreeting *bool    `yaml:"seed_greeting"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// Duration is a time.Duration that unmarshals from strings like "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	seed := true
	return &Config{
		Storage: StorageConfig{Backend: kv.BackendSQLite, Key: mirror.DefaultKey},
		Reply:   ReplyConfig{SeedGreeting: &seed},
		Server:  ServerConfig{Addr: "127.0.0.1:8787"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the optional .env file in the working
// directory, the YAML file at path (skipped when empty or missing) and
// AGENT_CONVO_* environment variables, in that order.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from AGENT_CONVO_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("AGENT_CONVO_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("AGENT_CONVO_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("AGENT_CONVO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AGENT_CONVO_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AGENT_CONVO_REPLY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AGENT_CONVO_REPLY_DELAY: %w", err)
		}
		c.Reply.Delay = Duration(d)
	}
	return nil
}

// SetDefaults fills fields left empty by the file and environment.
func (c *Config) SetDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = kv.BackendSQLite
	}
	if c.Storage.Key == "" {
		c.Storage.Key = mirror.DefaultKey
	}
	if c.Storage.Path == "" && c.Storage.Backend != kv.BackendMemory {
		home, _ := os.UserHomeDir()
		name := "convo.db"
		if c.Storage.Backend == kv.BackendPebble {
			name = "convo.pebble"
		}
		c.Storage.Path = filepath.Join(home, ".agent-convo", name)
	}
	if c.Reply.SeedGreeting == nil {
		seed := true
		c.Reply.SeedGreeting = &seed
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8787"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate rejects settings the application cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case kv.BackendSQLite, kv.BackendPebble, kv.BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Reply.Delay < 0 {
		return fmt.Errorf("reply delay must not be negative")
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// ReplyDelay returns the configured delay as a time.Duration.
func (c *Config) ReplyDelay() time.Duration {
	return time.Duration(c.Reply.Delay)
}

// Greeting reports whether new conversations get a greeting message.
func (c *Config) Greeting() bool {
	return c.Reply.SeedGreeting == nil || *c.Reply.SeedGreeting
}
