// Package config loads udiff settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/asynkron/udiff/internal/logging"
	"github.com/asynkron/udiff/pkg/udiff"
)

// Environment variable names.
const (
	EnvSearchRadius     = "UDIFF_SEARCH_RADIUS"
	EnvIgnoreWhitespace = "UDIFF_IGNORE_WHITESPACE"
	EnvParser           = "UDIFF_PARSER"
	EnvLogLevel         = "UDIFF_LOG_LEVEL"
	EnvLogFile          = "UDIFF_LOG_FILE"
	EnvNoColor          = "NO_COLOR"
)

// Parser backends.
const (
	ParserNative  = "native"
	ParserGitDiff = "gitdiff"
)

// Config holds the defaults for command flags.
type Config struct {
	SearchRadius     int
	IgnoreWhitespace bool
	Parser           string
	LogLevel         logging.Level
	LogFile          string
	NoColor          bool
}

// LoadDotEnv loads ".env" from the working directory into the process
// environment. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return nil
}

// FromEnv builds a Config from lookup, typically os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Config{SearchRadius: udiff.DefaultSearchRadius}

	if raw, ok := lookup(EnvSearchRadius); ok && strings.TrimSpace(raw) != "" {
		radius, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvSearchRadius, err)
		}
		cfg.SearchRadius = radius
	}
	if raw, ok := lookup(EnvIgnoreWhitespace); ok && strings.TrimSpace(raw) != "" {
		ignore, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvIgnoreWhitespace, err)
		}
		cfg.IgnoreWhitespace = ignore
	}
	if raw, ok := lookup(EnvParser); ok {
		cfg.Parser = strings.ToLower(strings.TrimSpace(raw))
	}
	if raw, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := logging.ParseLevel(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = level
	}
	if raw, ok := lookup(EnvLogFile); ok {
		cfg.LogFile = strings.TrimSpace(raw)
	}
	// https://no-color.org: any non-empty value disables color.
	if raw, ok := lookup(EnvNoColor); ok && raw != "" {
		cfg.NoColor = true
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Parser == "" {
		c.Parser = ParserNative
	}
	if c.LogLevel == "" {
		c.LogLevel = logging.LevelWarn
	}
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	if c.SearchRadius < 0 {
		return fmt.Errorf("search radius must not be negative, got %d", c.SearchRadius)
	}
	switch c.Parser {
	case ParserNative, ParserGitDiff:
	default:
		return fmt.Errorf("unknown parser %q (want %s or %s)", c.Parser, ParserNative, ParserGitDiff)
	}
	return nil
}

// Options converts the config into applier options.
func (c Config) Options() udiff.Options {
	radius := c.SearchRadius
	if radius == 0 {
		// zero in Config means exact-only; zero in udiff.Options means default
		radius = -1
	}
	return udiff.Options{SearchRadius: radius, IgnoreWhitespace: c.IgnoreWhitespace}
}
