// Package telemetry wires structured logging, metrics and trace spans for transactions.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/swiftos/birdy/internal/messages"
)

// Log output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "warn"

// NewLogger returns a logger writing to w at level in the given format.
func NewLogger(w io.Writer, level string, format string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf(messages.TelemetryUnknownLogFormatFmt, format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// ParseLevel parses a zerolog level name. An empty string selects DefaultLevel.
func ParseLevel(level string) (zerolog.Level, error) {
	raw := strings.ToLower(strings.TrimSpace(level))
	if raw == "" {
		raw = DefaultLevel
	}
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf(messages.TelemetryUnknownLogLevelFmt, level)
	}
	return lvl, nil
}

// WithTransaction attaches a child logger tagged with a fresh transaction id to ctx.
// It returns the derived context and the id.
func WithTransaction(ctx context.Context, op string, name string) (context.Context, string) {
	id := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().
		Str("txn", id).
		Str("op", op).
		Str("package", name).
		Logger()
	return logger.WithContext(ctx), id
}
