// Package config loads server configuration from a .env file, the environment
// and command-line flags, in that order of increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/iudanet/authgate/internal/validation"
)

// EnvPrefix префикс всех переменных окружения
const EnvPrefix = "AUTHGATE_"

// Драйверы хранилища
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// AdminConfig учетные данные администратора, создаваемого при старте.
// Пустой Email отключает создание.
type AdminConfig struct {
	Name     string `env:"NAME" envDefault:"Administrator"`
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
}

// Enabled сообщает, нужно ли создавать администратора
func (a AdminConfig) Enabled() bool {
	return a.Email != ""
}

// Config конфигурация сервера
type Config struct {
	Admin           AdminConfig   `envPrefix:"ADMIN_"`
	Addr            string        `env:"ADDR" envDefault:":8080"`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"authgate.db"`
	DatabaseDSN     string        `env:"DATABASE_DSN"`
	JWTSecret       string        `env:"JWT_SECRET"`
	TokenIssuer     string        `env:"TOKEN_ISSUER" envDefault:"authgate"`
	DefaultRole     string        `env:"DEFAULT_ROLE" envDefault:"user"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
	RateWindow      time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"10"`
	TrustProxy      bool          `env:"TRUST_PROXY" envDefault:"false"`
	ShowVersion     bool
}

// Load загружает конфигурацию: .env (если есть), переменные окружения, затем флаги из args.
// args без имени программы, то есть os.Args[1:].
func Load(args []string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}

	if cfg.ShowVersion {
		return cfg, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// parseFlags переопределяет значения из окружения флагами.
// Значения по умолчанию у флагов - уже загруженные из окружения.
func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("authgate-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.StringVar(&c.StoreDriver, "store", c.StoreDriver, "credential store driver: sqlite, postgres or memory")
	fs.StringVar(&c.SQLitePath, "sqlite-path", c.SQLitePath, "path to SQLite database file")
	fs.StringVar(&c.DatabaseDSN, "dsn", c.DatabaseDSN, "PostgreSQL connection string")
	fs.DurationVar(&c.TokenTTL, "token-ttl", c.TokenTTL, "access token lifetime")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: json or text")
	fs.BoolVar(&c.ShowVersion, "version", false, "show version information")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("%sJWT_SECRET is required", EnvPrefix))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("token ttl must be positive, got %s", c.TokenTTL))
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required for sqlite store"))
		}
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("database dsn is required for postgres store"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}

	if err := validation.ValidateRole(c.DefaultRole); err != nil {
		errs = append(errs, fmt.Errorf("default role: %w", err))
	}

	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit cannot be negative, got %d", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RateWindow <= 0 {
		errs = append(errs, fmt.Errorf("rate window must be positive, got %s", c.RateWindow))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	if c.Admin.Enabled() {
		if err := validation.ValidateEmail(c.Admin.Email); err != nil {
			errs = append(errs, fmt.Errorf("admin email: %w", err))
		}
		if err := validation.ValidatePassword(c.Admin.Password); err != nil {
			errs = append(errs, fmt.Errorf("admin password: %w", err))
		}
		if err := validation.ValidateName(c.Admin.Name); err != nil {
			errs = append(errs, fmt.Errorf("admin name: %w", err))
		}
	}

	return errors.Join(errs...)
}

// NewLogger создает slog.Logger по LogLevel и LogFormat
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
