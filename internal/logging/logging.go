// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging constructs the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-agent/pkg/types"
)

// New builds a zerolog logger from config. Format "console" produces
// human-readable output for interactive use; anything else emits JSON.
func New(cfg types.LoggingConfig) zerolog.Logger {
	var out io.Writer = os.Stderr
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
