package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the hub daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	// Addr is the listen address for the HTTP API, e.g. ":8900".
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// ModelsDir is the root directory scanned for model bundles.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`

	// SessionsDir is where per-serve session directories are created.
	SessionsDir string `json:"sessions_dir" yaml:"sessions_dir" toml:"sessions_dir"`

	// RegistryPath is the sqlite file backing the session registry.
	// Empty means SessionsDir/registry.db.
	RegistryPath string `json:"registry_path" yaml:"registry_path" toml:"registry_path"`

	// RedisAddr is the host:port of the cache backend.
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" toml:"redis_db"`

	// ServerHost is the interface model servers bind to.
	ServerHost string `json:"server_host" yaml:"server_host" toml:"server_host"`

	// PortRangeStart/End bound the ports handed to model servers when
	// no explicit port is requested. Zero disables the range and lets
	// the OS pick a free port.
	PortRangeStart int `json:"port_range_start" yaml:"port_range_start" toml:"port_range_start"`
	PortRangeEnd   int `json:"port_range_end" yaml:"port_range_end" toml:"port_range_end"`

	// ReadyTimeoutSec caps how long a model server may take to answer
	// its health endpoint after spawn.
	ReadyTimeoutSec int `json:"ready_timeout_sec" yaml:"ready_timeout_sec" toml:"ready_timeout_sec"`

	// DrainTimeoutSec is how long Stop waits after SIGTERM before SIGKILL.
	DrainTimeoutSec int `json:"drain_timeout_sec" yaml:"drain_timeout_sec" toml:"drain_timeout_sec"`

	// APIKeyHash is the hex-encoded SHA-256 of the bearer token required
	// by the HTTP API. Empty disables auth.
	APIKeyHash string `json:"api_key_hash" yaml:"api_key_hash" toml:"api_key_hash"`

	// CORSOrigins lists allowed origins; empty means same-origin only.
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`

	// LogLevel is one of zerolog's level strings (debug, info, warn, error).
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a config file and decodes it based on its extension.
// Supported: .yaml/.yml, .json, .toml.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse toml config: %w", err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with working defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Addr == "" {
		cfg.Addr = ":8900"
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = "~/.modelhub/models"
	}
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = "~/.modelhub/sessions"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "127.0.0.1:6379"
	}
	if cfg.ServerHost == "" {
		cfg.ServerHost = "127.0.0.1"
	}
	if cfg.ReadyTimeoutSec <= 0 {
		cfg.ReadyTimeoutSec = 30
	}
	if cfg.DrainTimeoutSec <= 0 {
		cfg.DrainTimeoutSec = 5
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}
