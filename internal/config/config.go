package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "concord.yaml"

// Config holds the server configuration. Values come from the yaml file,
// overridden by CONCORD_* environment variables.
type Config struct {
	ListenAddr          string `yaml:"listen_addr"`
	SocketPath          string `yaml:"socket_path"`
	DBPath              string `yaml:"db_path"`
	LockDurationMinutes int    `yaml:"lock_duration_minutes"`
	MaxPageLimit        int    `yaml:"max_page_limit"`
	Auth                Auth   `yaml:"auth"`
}

type Auth struct {
	KeysFile  string `yaml:"keys_file"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	return Config{
		ListenAddr:          ":7437",
		DBPath:              "concord.db",
		LockDurationMinutes: 15,
		MaxPageLimit:        200,
	}
}

// Load reads the config file at path (the default path when empty), applies
// environment overrides and validates the result. A missing file is not an
// error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = defaultConfigFile
		if v := strings.TrimSpace(os.Getenv("CONCORD_CONFIG")); v != "" {
			path = v
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(&cfg)

	if cfg.ListenAddr == "" {
		return Config{}, fmt.Errorf("listen_addr required")
	}
	if cfg.DBPath == "" {
		return Config{}, fmt.Errorf("db_path required")
	}
	if cfg.LockDurationMinutes <= 0 {
		cfg.LockDurationMinutes = Default().LockDurationMinutes
	}
	if cfg.MaxPageLimit <= 0 {
		cfg.MaxPageLimit = Default().MaxPageLimit
	}
	return cfg, nil
}

// LockDuration returns the edit-lock lease length.
func (c Config) LockDuration() time.Duration {
	return time.Duration(c.LockDurationMinutes) * time.Minute
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CONCORD_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("CONCORD_SOCKET_PATH")); v != "" {
		cfg.SocketPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CONCORD_DB_PATH")); v != "" {
		cfg.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CONCORD_LOCK_DURATION_MINUTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LockDurationMinutes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CONCORD_MAX_PAGE_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPageLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CONCORD_KEYS_FILE")); v != "" {
		cfg.Auth.KeysFile = v
	}
	if v := strings.TrimSpace(os.Getenv("CONCORD_JWT_SECRET")); v != "" {
		cfg.Auth.JWTSecret = v
	}
}
