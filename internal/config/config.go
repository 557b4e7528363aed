// Package config loads settings from the environment and an optional .env
// file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT, default=8080"`
	DBPath   string `env:"DB_PATH, default=svaha.db"`
	Workers  int    `env:"WORKERS, default=1"`
	LogDir   string `env:"LOG_DIR, default=logs"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Kite     KiteConfig     `env:", prefix=KITE_"`
	Download DownloadConfig `env:", prefix=DOWNLOAD_"`
}

// KiteConfig holds the provider credentials. The access token comes from an
// existing login session.
type KiteConfig struct {
	APIKey      string        `env:"API_KEY"`
	AccessToken string        `env:"ACCESS_TOKEN"`
	BaseURL     string        `env:"BASE_URL, default=https://api.kite.trade"`
	RateLimit   float64       `env:"RATE_LIMIT, default=3"`
	Timeout     time.Duration `env:"TIMEOUT, default=30s"`
}

type DownloadConfig struct {
	Exchange       string        `env:"EXCHANGE, default=NSE"`
	InstrumentType string        `env:"INSTRUMENT_TYPE, default=EQ"`
	CacheDir       string        `env:"CACHE_DIR, default=.cache"`
	WindowDays     int           `env:"WINDOW_DAYS, default=60"`
	SymbolDelay    time.Duration `env:"SYMBOL_DELAY, default=500ms"`
}

// Load reads .env from the working directory when present, then the
// environment. Variables already set win over .env entries.
func Load(ctx context.Context) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &c, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.Workers)
	}
	if c.Download.WindowDays <= 0 {
		return fmt.Errorf("DOWNLOAD_WINDOW_DAYS must be positive, got %d", c.Download.WindowDays)
	}
	if c.Download.SymbolDelay < 0 {
		return fmt.Errorf("DOWNLOAD_SYMBOL_DELAY must not be negative")
	}
	return nil
}

// RequireCredentials reports whether the provider credentials are set.
func (c Config) RequireCredentials() error {
	if c.Kite.APIKey == "" || c.Kite.AccessToken == "" {
		return errors.New("KITE_API_KEY and KITE_ACCESS_TOKEN must be set")
	}
	return nil
}
