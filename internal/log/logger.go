// Package log configures the process-wide zerolog logger and hands out
// component-scoped children.
package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bnema/partybot/internal/version"
	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config captures options for configuring the base logger.
type Config struct {
	Level   string    // "debug", "info", ...; falls back to info
	Format  string    // FormatJSON (default) or FormatConsole
	Output  io.Writer // defaults to os.Stderr
	Service string    // attached to every entry; defaults to "partybot"
}

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// New builds a logger from cfg without touching the base logger.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level = parsed
		}
	}

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	if cfg.Format == FormatConsole {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}
	}

	service := cfg.Service
	if service == "" {
		service = "partybot"
	}

	return zerolog.New(writer).Level(level).With().
		Timestamp().
		Str("service", service).
		Str("version", version.Version).
		Logger()
}

// Configure replaces the base logger.
func Configure(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	l := New(cfg)

	mu.Lock()
	base = l
	mu.Unlock()

	return l
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}
