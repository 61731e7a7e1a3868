package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"shopify-catalog-scraper/internal/types"
)

// Load reads .env (when present) and the process environment into a Config
func Load(files ...string) (*types.Config, error) {
	// a missing .env is fine, variables may come from the environment
	_ = godotenv.Load(files...)

	cfg := &types.Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	applyLegacy(cfg)

	if cfg.UserAgent == "" {
		cfg.UserAgent = types.DefaultUserAgent()
	}
	return cfg, nil
}

// applyLegacy honours the variable names older installs used for Garnier-Thiebaut
func applyLegacy(cfg *types.Config) {
	legacy := map[*string]string{
		&cfg.Garnier.BaseURL:  "BASE_URL_GARNIER",
		&cfg.Garnier.Username: "USERNAME",
		&cfg.Garnier.Password: "PASSWORD",
	}
	for field, name := range legacy {
		if *field != "" {
			continue
		}
		if v, ok := os.LookupEnv(name); ok {
			*field = strings.TrimSpace(v)
		}
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "outputs"
	}
}

// NewLogger builds the logrus logger used by the binaries
func NewLogger(level string, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if verbose {
		lvl = logrus.DebugLevel
	}
	logger.SetLevel(lvl)
	return logger
}
