// Package config loads the server configuration from defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultJWTSecret is the placeholder secret. Running with it lets anyone
// forge sessions, so the server warns when it is in use.
const DefaultJWTSecret = "change-me-in-production"

// Storage backends.
const (
	BackendBolt     = "bbolt"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config holds all server configuration.
type Config struct {
	Listen  string        `yaml:"listen"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	TLS     TLSConfig     `yaml:"tls"`
	Cache   CacheConfig   `yaml:"cache"`
	Leads   LeadsConfig   `yaml:"leads"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects and locates the storage backend.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	DataDir     string `yaml:"data_dir"`
	DatabaseURL string `yaml:"database_url"`
}

// AuthConfig configures session handling.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	CookieName    string        `yaml:"cookie_name"`
	AllowInsecure bool          `yaml:"allow_insecure_cookies"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
}

// TLSConfig points at a certificate pair. Both empty serves plain HTTP,
// for deployments behind a TLS-terminating proxy.
type TLSConfig struct {
	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`
}

// CacheConfig sizes the public content cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// LeadsConfig configures the lead notification webhook.
type LeadsConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Listen: ":3000",
		Storage: StorageConfig{
			Backend: BackendBolt,
			DataDir: "./data",
		},
		Auth: AuthConfig{
			JWTSecret:  DefaultJWTSecret,
			SessionTTL: 365 * 24 * time.Hour,
			CookieName: "app_session_id",
			BcryptCost: 12,
		},
		Cache: CacheConfig{TTL: 5 * time.Minute},
		Leads: LeadsConfig{Timeout: 10 * time.Second},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// Load returns the defaults overlaid with path (when non-empty) and then
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) mergeEnv(lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	var errs []error
	dur := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid duration for %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str(&c.Listen, "FOXVALLEY_LISTEN")
	str(&c.Storage.Backend, "FOXVALLEY_STORAGE_BACKEND")
	str(&c.Storage.DataDir, "FOXVALLEY_DATA_DIR")
	str(&c.Storage.DatabaseURL, "FOXVALLEY_DATABASE_URL", "DATABASE_URL")
	str(&c.Auth.JWTSecret, "FOXVALLEY_JWT_SECRET", "JWT_SECRET")
	dur(&c.Auth.SessionTTL, "FOXVALLEY_SESSION_TTL")
	str(&c.Auth.CookieName, "FOXVALLEY_COOKIE_NAME")
	if v, ok := lookup("FOXVALLEY_ALLOW_INSECURE_COOKIES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid boolean for FOXVALLEY_ALLOW_INSECURE_COOKIES: %w", err))
		} else {
			c.Auth.AllowInsecure = b
		}
	}
	if v, ok := lookup("FOXVALLEY_BCRYPT_COST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid integer for FOXVALLEY_BCRYPT_COST: %w", err))
		} else {
			c.Auth.BcryptCost = n
		}
	}
	str(&c.TLS.CertFile, "FOXVALLEY_TLS_CERT")
	str(&c.TLS.KeyFile, "FOXVALLEY_TLS_KEY")
	dur(&c.Cache.TTL, "FOXVALLEY_CACHE_TTL")
	str(&c.Leads.WebhookURL, "FOXVALLEY_LEAD_WEBHOOK_URL")
	dur(&c.Leads.Timeout, "FOXVALLEY_LEAD_WEBHOOK_TIMEOUT")
	str(&c.Log.Level, "FOXVALLEY_LOG_LEVEL")
	str(&c.Log.Format, "FOXVALLEY_LOG_FORMAT")

	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	switch c.Storage.Backend {
	case BackendBolt, BackendSQLite:
		if c.Storage.DataDir == "" {
			errs = append(errs, fmt.Errorf("%s backend needs a data directory", c.Storage.Backend))
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres backend needs a database URL"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is empty"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("bcrypt cost %d out of range 4..31", c.Auth.BcryptCost))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls cert and key must be set together"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache ttl must not be negative"))
	}
	if c.Leads.WebhookURL != "" && !strings.HasPrefix(c.Leads.WebhookURL, "http://") && !strings.HasPrefix(c.Leads.WebhookURL, "https://") {
		errs = append(errs, errors.New("lead webhook url must be http or https"))
	}
	return errors.Join(errs...)
}

// UsesDefaultSecret reports whether the placeholder signing secret is in use.
func (c Config) UsesDefaultSecret() bool {
	return c.Auth.JWTSecret == DefaultJWTSecret
}

// BoltPath is the bbolt database file inside the data directory.
func (c Config) BoltPath() string {
	return filepath.Join(c.Storage.DataDir, "site.db")
}

// SQLitePath is the SQLite database file inside the data directory.
func (c Config) SQLitePath() string {
	return filepath.Join(c.Storage.DataDir, "site.sqlite")
}

// String masks the secret.
func (c Config) String() string {
	return fmt.Sprintf("Config{Listen: %s, Storage: %s, DataDir: %s, Auth: *** (masked) ***}",
		c.Listen, c.Storage.Backend, c.Storage.DataDir)
}
