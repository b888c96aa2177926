// Package cli implements the agent-convo CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rcliao/agent-convo/internal/config"
	"github.com/rcliao/agent-convo/internal/kv"
	"github.com/rcliao/agent-convo/internal/logger"
	"github.com/rcliao/agent-convo/internal/metrics"
	"github.com/rcliao/agent-convo/internal/mirror"
	"github.com/rcliao/agent-convo/internal/schedule"
	"github.com/rcliao/agent-convo/internal/store"
)

var (
	dbPath     string
	backend    string
	configPath string
	formatFlag string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agent-convo",
	Short: "Conversation store for canned-reply agents",
	Long:  "A small conversation store with persona replies, live subscriptions and a persisted mirror. SQLite-backed by default.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $AGENT_CONVO_DB or ~/.agent-convo/convo.db)")
	RootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Storage backend: sqlite, pebble or memory")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: ~/.agent-convo/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agent-convo", "config.yaml")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if backend != "" {
		cfg.Storage.Backend = backend
		if dbPath == "" && os.Getenv("AGENT_CONVO_DB") == "" {
			cfg.Storage.Path = ""
		}
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app bundles everything a command needs. Close persists and releases it.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	mirror   *mirror.Mirror
	sched    schedule.Scheduler
	store    *store.Store
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	db, err := kv.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	m := mirror.New(db, cfg.Storage.Key)

	var sched schedule.Scheduler = schedule.Immediate{}
	if cfg.ReplyDelay() > 0 {
		sched = schedule.NewTimerScheduler()
	}

	reg := prometheus.NewRegistry()
	st := store.New(ctx, store.Options{
		Mirror:       m,
		Scheduler:    sched,
		ReplyDelay:   cfg.ReplyDelay(),
		Logger:       log,
		Metrics:      metrics.New(reg),
		SeedGreeting: cfg.Greeting(),
	})

	return &app{cfg: cfg, log: log, registry: reg, mirror: m, sched: sched, store: st}, nil
}

func (a *app) Close() {
	if err := a.store.Close(context.Background()); err != nil {
		a.log.Warn("final_persist_failed", "error", err)
	}
	a.sched.Close()
	if err := a.mirror.Close(); err != nil {
		a.log.Warn("close_failed", "error", err)
	}
}

func mustOpen(cmd *cobra.Command) *app {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	return a
}

func textOutput() bool {
	return formatFlag == "text"
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
