// Package config loads orchestrator and worker settings from defaults, an
// optional YAML file and AXON_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Worker transports.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// Config holds orchestrator settings plus the worker section used by cmd/worker.
type Config struct {
	HTTPAddr          string        `yaml:"http_addr"`
	GRPCAddr          string        `yaml:"grpc_addr"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	SilentAfter       time.Duration `yaml:"silent_after"`
	DashboardInterval time.Duration `yaml:"dashboard_interval"`

	Worker WorkerConfig `yaml:"worker"`
}

// WorkerConfig configures a worker process.
type WorkerConfig struct {
	ID                string        `yaml:"id"`
	Transport         string        `yaml:"transport"`
	CoordinatorAddr   string        `yaml:"coordinator_addr"`
	PollRate          float64       `yaml:"poll_rate"`
	PollBurst         int           `yaml:"poll_burst"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	CompleteRetries   int           `yaml:"complete_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:          ":8000",
		GRPCAddr:          ":9000",
		LogLevel:          "info",
		LogFormat:         "text",
		ShutdownTimeout:   10 * time.Second,
		SilentAfter:       15 * time.Second,
		DashboardInterval: 2 * time.Second,
		Worker: WorkerConfig{
			Transport:         TransportGRPC,
			PollRate:          2,
			PollBurst:         1,
			HeartbeatInterval: 5 * time.Second,
			CompleteRetries:   3,
			RetryBackoff:      time.Second,
		},
	}
}

// Load builds a Config. path may be empty, in which case only defaults and
// environment overrides apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if cfg.Worker.ID == "" {
		hostname, _ := os.Hostname()
		cfg.Worker.ID = "worker-" + hostname
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"AXON_HTTP_ADDR", &c.HTTPAddr},
		{"AXON_GRPC_ADDR", &c.GRPCAddr},
		{"AXON_LOG_LEVEL", &c.LogLevel},
		{"AXON_LOG_FORMAT", &c.LogFormat},
		{"WORKER_ID", &c.Worker.ID},
		{"AXON_COORDINATOR_ADDR", &c.Worker.CoordinatorAddr},
		{"AXON_WORKER_TRANSPORT", &c.Worker.Transport},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.dst = v
		}
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc_addr is required"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if c.SilentAfter <= 0 {
		errs = append(errs, errors.New("silent_after must be positive"))
	}
	if c.DashboardInterval <= 0 {
		errs = append(errs, errors.New("dashboard_interval must be positive"))
	}

	w := c.Worker
	if w.Transport != TransportGRPC && w.Transport != TransportHTTP {
		errs = append(errs, fmt.Errorf("worker.transport must be grpc or http, got %q", w.Transport))
	}
	if w.PollRate <= 0 {
		errs = append(errs, errors.New("worker.poll_rate must be positive"))
	}
	if w.PollBurst < 1 {
		errs = append(errs, errors.New("worker.poll_burst must be at least 1"))
	}
	if w.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("worker.heartbeat_interval must be positive"))
	}
	if w.CompleteRetries < 0 {
		errs = append(errs, errors.New("worker.complete_retries must not be negative"))
	}
	if w.RetryBackoff <= 0 {
		errs = append(errs, errors.New("worker.retry_backoff must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Target returns the address the worker dials: host:port for gRPC, a base
// URL for HTTP. An empty CoordinatorAddr falls back to localhost.
func (w WorkerConfig) Target() string {
	addr := w.CoordinatorAddr
	if w.Transport == TransportHTTP {
		if addr == "" {
			addr = "localhost:8000"
		}
		if !strings.Contains(addr, "://") {
			addr = "http://" + addr
		}
		return strings.TrimRight(addr, "/")
	}
	if addr == "" {
		addr = "localhost:9000"
	}
	return addr
}

// NewLogger builds the process logger described by cfg.
func NewLogger(cfg Config, out io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
