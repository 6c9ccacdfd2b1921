// Package config loads CLI and server configuration from defaults, an
// optional YAML file, SQLKIT_-prefixed environment variables, and flags, in
// ascending precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Mode values for SQL file loading.
const (
	ModeCompiled = "compiled"
	ModeDynamic  = "dynamic"
)

// PoolConfig configures the embedded-engine connection pool.
type PoolConfig struct {
	Size            int           `koanf:"size"`
	CheckoutTimeout time.Duration `koanf:"checkout_timeout"`
	Setup           []string      `koanf:"setup"`
}

// SQLConfig configures the SQL file library.
type SQLConfig struct {
	Dir  string `koanf:"dir"`
	Mode string `koanf:"mode"` // compiled | dynamic
}

// HistoryConfig configures the query-run metastore.
type HistoryConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig configures the HTTP query server.
type ServerConfig struct {
	Addr           string   `koanf:"addr"`
	RateLimitRPS   float64  `koanf:"rate_limit"`
	RateLimitBurst int      `koanf:"rate_limit_burst"`
	CORSOrigins    []string `koanf:"cors_origins"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug | info | warn | error
	Format string `koanf:"format"` // text | json
}

// Config is the full CLI/server configuration.
type Config struct {
	// Database is the backend to query: a DuckDB file path, ":memory:",
	// or a postgres:// URL for a conventional server.
	Database string        `koanf:"database"`
	Pool     PoolConfig    `koanf:"pool"`
	SQL      SQLConfig     `koanf:"sql"`
	History  HistoryConfig `koanf:"history"`
	Server   ServerConfig  `koanf:"server"`
	Log      LogConfig     `koanf:"log"`
	// Output is the default CLI result format.
	Output string `koanf:"output"`
}

// defaults is the lowest-precedence layer of the loading chain.
func defaults() map[string]any {
	return map[string]any{
		"database":              ":memory:",
		"pool.size":             4,
		"pool.checkout_timeout": "5s",
		"sql.dir":               "sql",
		"sql.mode":              ModeCompiled,
		"history.path":          "sqlkit_history.sqlite",
		"server.addr":           ":8080",
		"server.rate_limit":     100.0,
		"server.rate_limit_burst": 200,
		"server.cors_origins":   []string{"*"},
		"log.level":             "info",
		"log.format":            "text",
		"output":                "table",
	}
}

// Load builds the configuration. Precedence, highest first: flags set on
// the command line, SQLKIT_ environment variables ("__" maps to "." so
// SQLKIT_POOL__SIZE sets pool.size), the YAML file at cfgFile (or
// sqlkit.yaml / sqlkit.yml in the working directory), then defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if cfgFile == "" {
		for _, name := range []string{"sqlkit.yaml", "sqlkit.yml"} {
			if _, err := os.Stat(name); err == nil {
				cfgFile = name
				break
			}
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider("SQLKIT_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "SQLKIT_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			// --pool-timeout is the short CLI spelling of the
			// pool.checkout_timeout key.
			if f.Name == "pool-timeout" {
				return "pool.checkout_timeout", posflag.FlagVal(flags, f)
			}
			key := strings.ReplaceAll(f.Name, "-", ".")
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Pool.Size <= 0 {
		return fmt.Errorf("pool.size must be positive, got %d", c.Pool.Size)
	}
	if c.SQL.Mode != ModeCompiled && c.SQL.Mode != ModeDynamic {
		return fmt.Errorf("sql.mode must be %q or %q, got %q", ModeCompiled, ModeDynamic, c.SQL.Mode)
	}
	return nil
}

// IsPostgres reports whether the configured database is a conventional
// postgres server rather than an embedded engine location.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.Database, "postgres://") || strings.HasPrefix(c.Database, "postgresql://")
}

// SlogLevel maps the configured log level string to an slog.Level,
// defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds the process logger described by the log section.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
