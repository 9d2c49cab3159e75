package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Mode selects the defaults for the API address and timeout.
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
)

// Backend names accepted by the cache and session sections.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config holds the client settings after defaults and environment overrides.
type Config struct {
	Mode         Mode
	APIURL       string
	Timeout      time.Duration
	Debug        bool
	LogFile      string
	PollInterval time.Duration
	Cache        CacheConfig
	Session      SessionConfig
}

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Addr     string `toml:"redis_addr"`
	Password string `toml:"redis_password"`
	DB       int    `toml:"redis_db"`
	Prefix   string `toml:"prefix"`
}

// CacheConfig selects the response cache backend: memory, redis or none.
type CacheConfig struct {
	Backend string `toml:"backend"`
	RedisConfig
}

// SessionConfig selects where the session is persisted: file, redis or memory.
type SessionConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	RedisConfig
}

const (
	defaultConfigPath   = "~/.config/shelf/config.toml"
	defaultLogFile      = "~/.local/state/shelf/shelf.log"
	defaultSessionPath  = "~/.config/shelf/session.toml"
	defaultDevURL       = "http://localhost:5000/api"
	defaultProdURL      = "https://library.example.com/api"
	defaultDevTimeout   = 30 * time.Second
	defaultProdTimeout  = 10 * time.Second
	defaultPollInterval = 30 * time.Second
	defaultRedisAddr    = "127.0.0.1:6379"

	envAPIURL = "SHELF_API_URL"
	envMode   = "SHELF_ENV"
	envDebug  = "SHELF_DEBUG"
)

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

type rawConfig struct {
	Env         string        `toml:"env"`
	APIURL      string        `toml:"api_url"`
	Timeout     string        `toml:"timeout"`
	Debug       *bool         `toml:"debug"`
	LogFile     string        `toml:"log_file"`
	PollSeconds int           `toml:"poll_seconds"`
	Cache       CacheConfig   `toml:"cache"`
	Session     SessionConfig `toml:"session"`
}

// Load reads the config file at path (the default path when empty), falling
// back to defaults when it is missing, then applies SHELF_* environment
// overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var raw rawConfig
	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&raw); err != nil {
		return Config{}, err
	}
	return build(raw)
}

func applyEnv(raw *rawConfig) error {
	if v := strings.TrimSpace(os.Getenv(envAPIURL)); v != "" {
		raw.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envMode)); v != "" {
		raw.Env = v
	}
	if v := strings.TrimSpace(os.Getenv(envDebug)); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envDebug, err)
		}
		raw.Debug = &debug
	}
	return nil
}

func build(raw rawConfig) (Config, error) {
	mode, err := parseMode(raw.Env)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Mode: mode, PollInterval: defaultPollInterval}

	cfg.APIURL = strings.TrimSpace(raw.APIURL)
	cfg.Timeout = defaultDevTimeout
	if mode == Production {
		cfg.Timeout = defaultProdTimeout
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultDevURL
		if mode == Production {
			cfg.APIURL = defaultProdURL
		}
	}
	if t := strings.TrimSpace(raw.Timeout); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("timeout must be positive, got %s", d)
		}
		cfg.Timeout = d
	}

	if raw.Debug != nil {
		cfg.Debug = *raw.Debug
	} else {
		cfg.Debug = mode == Development
	}

	cfg.LogFile = strings.TrimSpace(raw.LogFile)
	if cfg.LogFile == "" {
		cfg.LogFile = defaultLogFile
	}
	cfg.LogFile = mustExpand(cfg.LogFile)

	if raw.PollSeconds > 0 {
		cfg.PollInterval = time.Duration(raw.PollSeconds) * time.Second
	}

	cfg.Cache = raw.Cache
	cfg.Cache.Backend, err = pickBackend("cache", raw.Cache.Backend, BackendMemory, BackendMemory, BackendRedis, BackendNone)
	if err != nil {
		return Config{}, err
	}
	normalizeRedis(&cfg.Cache.RedisConfig, "shelf:cache")

	cfg.Session = raw.Session
	cfg.Session.Backend, err = pickBackend("session", raw.Session.Backend, BackendFile, BackendFile, BackendRedis, BackendMemory)
	if err != nil {
		return Config{}, err
	}
	normalizeRedis(&cfg.Session.RedisConfig, "shelf:session")
	cfg.Session.Path = strings.TrimSpace(cfg.Session.Path)
	if cfg.Session.Path == "" {
		cfg.Session.Path = defaultSessionPath
	}
	cfg.Session.Path = mustExpand(cfg.Session.Path)

	return cfg, nil
}

func parseMode(v string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "dev", string(Development):
		return Development, nil
	case "prod", string(Production):
		return Production, nil
	default:
		return "", fmt.Errorf("unknown env %q (want development or production)", v)
	}
}

func pickBackend(section, v, fallback string, allowed ...string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return fallback, nil
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown %s backend %q", section, v)
}

func normalizeRedis(rc *RedisConfig, prefix string) {
	rc.Addr = strings.TrimSpace(rc.Addr)
	if rc.Addr == "" {
		rc.Addr = defaultRedisAddr
	}
	rc.Prefix = strings.TrimSpace(rc.Prefix)
	if rc.Prefix == "" {
		rc.Prefix = prefix
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return ExpandPath(defaultConfigPath)
	}
	return ExpandPath(path)
}

func mustExpand(path string) string {
	expanded, err := ExpandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath expands a leading ~ to the home directory and returns an
// absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
