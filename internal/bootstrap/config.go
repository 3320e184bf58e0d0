package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/garagebay/staffgate/config"
	"github.com/joho/godotenv"
)

// InitLogger installs a JSON info logger on stdout. It is used until the
// configuration is loaded and ConfigureLogger replaces it.
func InitLogger() *slog.Logger {
	logger := NewLogger(os.Stdout, config.LogConfig{Level: "info", Format: "json"})
	slog.SetDefault(logger)
	return logger
}

// ConfigureLogger rebuilds the default logger from LOG_* settings.
func ConfigureLogger(cfg config.LogConfig) *slog.Logger {
	logger := NewLogger(os.Stdout, cfg)
	slog.SetDefault(logger)
	return logger
}

// NewLogger builds a slog logger writing to w. Unknown levels fall back to
// info; LoadConfig already rejects them.
func NewLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// LoadConfig reads optional dotenv files (".env" when none are given), parses
// the environment into AppConfig, applies guardrails and validates.
func LoadConfig(dotenvFiles ...string) (config.AppConfig, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.AppConfig{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
