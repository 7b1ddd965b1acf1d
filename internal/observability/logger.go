// Package observability holds the process-wide loggers.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles.
const (
	ProfileStructured = "structured"
	ProfileConsole    = "console"
)

var (
	// CLILogger is used by commands. It writes to stderr so stdout stays
	// reserved for JSONL records and listings.
	CLILogger = zap.NewNop()

	// ServerLogger is used by the HTTP server.
	ServerLogger = zap.NewNop()
)

// ParseLevel maps a level name to a zap level. Unknown names are an error.
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// NewLogger builds a logger writing to w. The structured profile emits JSON;
// console emits human-readable lines.
func NewLogger(level, profile string, w io.Writer) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(profile) {
	case "", ProfileStructured:
		enc = zapcore.NewJSONEncoder(encCfg)
	case ProfileConsole:
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid logging profile %q (want structured or console)", profile)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// InitCLILogger replaces CLILogger with a console logger on stderr.
func InitCLILogger(level string, structured bool) error {
	profile := ProfileConsole
	if structured {
		profile = ProfileStructured
	}
	l, err := NewLogger(level, profile, os.Stderr)
	if err != nil {
		return err
	}
	CLILogger = l.With(zap.String("component", "cli"))
	return nil
}

// InitServerLogger replaces ServerLogger with a logger on stderr.
func InitServerLogger(level, profile string) error {
	l, err := NewLogger(level, profile, os.Stderr)
	if err != nil {
		return err
	}
	ServerLogger = l.With(zap.String("component", "server"))
	return nil
}
