// Package config loads the canvas command configuration.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// TOML or YAML file, CANVAS_* environment variables and command-line flags.
// Nested keys use "__" in environment variable names, e.g. CANVAS_STORE__TYPE.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/florianilch/canvaskit/tokensource"
	"github.com/florianilch/canvaskit/tokenstore"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CANVAS_"

// Token store backends.
const (
	StoreMemory  = "memory"
	StoreFile    = "file"
	StoreKeyring = "keyring"
	StoreRedis   = "redis"
	StoreS3      = "s3"
	StoreSQL     = "sql"
)

// Config is the complete configuration of the canvas command.
type Config struct {
	Domain        string        `koanf:"domain" validate:"required"`
	ClientID      string        `koanf:"client_id"`
	ClientSecret  string        `koanf:"client_secret"`
	RefreshToken  string        `koanf:"refresh_token"`
	AccessToken   string        `koanf:"access_token"`
	AutoRefresh   bool          `koanf:"auto_refresh"`
	TokenEndpoint string        `koanf:"token_endpoint" validate:"required,startswith=/"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`

	Store StoreConfig `koanf:"store"`
	Log   LogConfig   `koanf:"log"`
}

// StoreConfig selects and configures the token store.
type StoreConfig struct {
	Type    string        `koanf:"type" validate:"oneof=memory file keyring redis s3 sql"`
	Path    string        `koanf:"path" validate:"required_if=Type file"`
	Keyring KeyringConfig `koanf:"keyring"`
	Redis   RedisConfig   `koanf:"redis"`
	S3      S3Config      `koanf:"s3"`
	SQL     SQLConfig     `koanf:"sql"`
}

type KeyringConfig struct {
	Service string `koanf:"service"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	Prefix   string `koanf:"prefix"`
}

type S3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Bucket    string `koanf:"bucket"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
	Prefix    string `koanf:"prefix"`
}

type SQLConfig struct {
	Driver string `koanf:"driver" validate:"omitempty,oneof=sqlite3 postgres"`
	DSN    string `koanf:"dsn"`
}

// LogConfig configures logging. Exporter "none" writes to stdout through slog
// handlers; the others send records through an OpenTelemetry log exporter.
type LogConfig struct {
	Level    string `koanf:"level" validate:"oneof=debug info warn error"`
	Format   string `koanf:"format" validate:"oneof=text json"`
	Exporter string `koanf:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// Defaults returns the built-in configuration as a koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"auto_refresh":          true,
		"token_endpoint":        tokensource.DefaultTokenEndpoint,
		"timeout":               "30s",
		"store.type":            StoreFile,
		"store.path":            defaultStorePath(),
		"store.keyring.service": tokenstore.DefaultKeyringService,
		"store.redis.addr":      "localhost:6379",
		"store.redis.prefix":    "canvaskit:",
		"store.s3.prefix":       "tokens/",
		"store.sql.driver":      tokenstore.DriverSQLite,
		"log.level":             "info",
		"log.format":            "text",
		"log.exporter":          "none",
	}
}

// Load reads the configuration. path may be empty. environ supplies the
// environment (os.Environ in production). overrides holds flag values keyed
// by koanf path and is applied last.
func Load(path string, environ func() []string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if environ != nil {
		provider := env.Provider(".", env.Opt{
			Prefix:        EnvPrefix,
			TransformFunc: envKey,
			EnvironFunc:   environ,
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load environment: %w", err)
		}
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps CANVAS_STORE__REDIS__ADDR to store.redis.addr.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", "."), value
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return YAML(), nil
	default:
		return nil, fmt.Errorf("unsupported config file type %q (expected: .toml, .yaml, .yml)", filepath.Ext(path))
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateStore, StoreConfig{})
	return v
}

// validateStore checks backend-specific fields of the selected store only.
func validateStore(sl validator.StructLevel) {
	s := sl.Current().Interface().(StoreConfig)

	switch s.Type {
	case StoreRedis:
		if s.Redis.Addr == "" {
			sl.ReportError(s.Redis.Addr, "redis.addr", "Redis.Addr", "required", "")
		}
	case StoreS3:
		if s.S3.Endpoint == "" {
			sl.ReportError(s.S3.Endpoint, "s3.endpoint", "S3.Endpoint", "required", "")
		}
		if s.S3.Bucket == "" {
			sl.ReportError(s.S3.Bucket, "s3.bucket", "S3.Bucket", "required", "")
		}
	case StoreSQL:
		if s.SQL.DSN == "" {
			sl.ReportError(s.SQL.DSN, "sql.dsn", "SQL.DSN", "required", "")
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Credentials returns the token manager credentials.
func (c *Config) Credentials() tokensource.Credentials {
	return tokensource.Credentials{
		Domain:        c.Domain,
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		RefreshToken:  c.RefreshToken,
		TokenEndpoint: c.TokenEndpoint,
	}
}
