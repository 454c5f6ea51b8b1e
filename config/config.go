// Package config loads the daemon's optional YAML configuration file.
// All values are optional; keys absent from the file keep Default()'s
// values. ubridged's only CLI flag is --config (the file's path); no
// CLI flag overrides an individual config value.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds daemon-tunable values that spec.md otherwise fixes as
// constants (socket path, idle timeout) — kept overridable here since
// a real daemon needs to run more than one instance side by side in
// development without colliding on the abstract socket name.
type Config struct {
	SocketPath      string   `yaml:"socket_path"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	LogLevel        string   `yaml:"log_level"`
	KVCapacityHint  int      `yaml:"kv_capacity_hint"`
	MonitorSocket   string   `yaml:"monitor_socket"`
	WorkerPath      string   `yaml:"worker_path"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "5s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// DefaultSocketPath is "@sid-ubridge.socket" (spec.md §6), without the
// leading '@' marker (the abstract-namespace prefix is applied by
// commsunix.AbstractListener).
const DefaultSocketPath = "sid-ubridge.socket"

// DefaultMonitorSocket is the non-normative debug-introspection
// endpoint (SPEC_FULL.md §12), separate from the public protocol
// socket so it carries no wire-compatibility burden.
const DefaultMonitorSocket = "sid-ubridge.debug.socket"

// DefaultIdleTimeout is WORKER_IDLE_TIMEOUT_USEC from the source:
// 5,000,000 microseconds.
const DefaultIdleTimeout = 5 * time.Second

// DefaultWorkerPath is the worker binary invoked via os/exec; callers
// typically override it to the path of a built ubridge-worker binary.
const DefaultWorkerPath = "ubridge-worker"

// Default returns a Config populated with spec.md's defaults.
func Default() Config {
	return Config{
		SocketPath:     DefaultSocketPath,
		IdleTimeout:    Duration{DefaultIdleTimeout},
		LogLevel:       "info",
		KVCapacityHint: 64,
		MonitorSocket:  DefaultMonitorSocket,
		WorkerPath:     DefaultWorkerPath,
	}
}

// Load reads a YAML config file at path, merging its values over
// Default(). A missing file is not an error; Load returns the default
// config unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
