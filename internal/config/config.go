package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/victorgomez09/keygate/internal/middleware"
)

// Keygate is the main configuration structure for the gate. It aggregates
// the HTTP server settings, storage paths, authenticator secrets and the
// per-route rate-limit budgets.
type Keygate struct {
	Server     Server                                `yaml:"server"`
	Database   Database                              `yaml:"database"`
	Redis      Redis                                 `yaml:"redis"`
	Auth       Auth                                  `yaml:"auth"`
	License    License                               `yaml:"license"`
	Throttle   Throttle                              `yaml:"throttle"`
	RateLimits map[string]middleware.RateLimitConfig `yaml:"rate_limits"`
	Abuse      Abuse                                 `yaml:"abuse"`
	SMTP       SMTP                                  `yaml:"smtp"`
	Log        Log                                   `yaml:"log"`
}

type Server struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Database struct {
	Path string `yaml:"path"`
}

// Redis is optional. When Addr is set the rate-limit counters move from
// process memory into Redis, giving a shared ceiling across replicas.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Auth struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenExpiry        time.Duration `yaml:"token_expiry"`
	MaxLoginAttempts   int           `yaml:"max_login_attempts"`
	LockDuration       time.Duration `yaml:"lock_duration"`
	SharedSecretHeader string        `yaml:"shared_secret_header"`
	SharedSecret       string        `yaml:"shared_secret"`
}

type License struct {
	DefaultRequestLimit int `yaml:"default_request_limit"`
}

// Throttle is the coarse per-client budget applied in front of every route.
type Throttle struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Abuse configures the automated abuse signal endpoint.
type Abuse struct {
	BlockTTL time.Duration `yaml:"block_ttl"`
}

// SMTP is optional. When Host is set, auto-blocks raise an email notice.
type SMTP struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML config at path, applies environment overrides for the
// secret material and fills defaults.
func Load(path string) (*Keygate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Keygate
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets come from the environment (or a .env file loaded by
// main) instead of sitting in the YAML on disk.
func (c *Keygate) applyEnv() {
	if v := os.Getenv("KEYGATE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("KEYGATE_SHARED_SECRET"); v != "" {
		c.Auth.SharedSecret = v
	}
	if v := os.Getenv("KEYGATE_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("KEYGATE_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

func (c *Keygate) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Database.Path == "" {
		c.Database.Path = "keygate.db"
	}
	if c.Auth.SharedSecretHeader == "" {
		c.Auth.SharedSecretHeader = "X-Keygate-Secret"
	}
	if c.Abuse.BlockTTL == 0 {
		c.Abuse.BlockTTL = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.RateLimits == nil {
		c.RateLimits = map[string]middleware.RateLimitConfig{}
	}
	if _, ok := c.RateLimits["default"]; !ok {
		c.RateLimits["default"] = middleware.RateLimitConfig{
			Max:     120,
			Window:  time.Minute,
			Message: "too many requests, slow down",
		}
	}
	if _, ok := c.RateLimits["validate"]; !ok {
		c.RateLimits["validate"] = middleware.RateLimitConfig{
			Max:     30,
			Window:  time.Minute,
			Message: "validation rate limit reached",
		}
	}
	if _, ok := c.RateLimits["auth"]; !ok {
		c.RateLimits["auth"] = middleware.RateLimitConfig{
			Max:     10,
			Window:  time.Minute,
			Message: "too many login attempts",
		}
	}
}

func (c *Keygate) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or KEYGATE_JWT_SECRET)")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
