// Package logger configures the global zerolog logger shared by the relay
// and the gate.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Service string // Tagged on every line as "service"
	Output  string // "stdout", "stderr" or a file path
	Level   string // "debug", "info", "warn", "error"
}

// Init replaces the global logger. Terminals get colored console lines,
// files get one JSON object per line.
func Init(cfg Config) error {
	level := parseLevel(cfg.Level)

	w, console, err := openOutput(cfg.Output)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.CallerMarshalFunc = shortCaller

	if console {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.TimeOnly,
			FormatCaller: func(i interface{}) string {
				if s, ok := i.(string); ok && s != "" {
					return "(" + s + ")"
				}
				return ""
			},
		}
	}

	ctx := zerolog.New(w).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	// Caller is added at debug level only.
	if level == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	logger := ctx.Logger()

	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return nil
}

// SetLevel changes the global log level at runtime.
func SetLevel(level string) {
	l := parseLevel(level)
	if zerolog.GlobalLevel() == l {
		return
	}
	zerolog.SetGlobalLevel(l)
	zlog.Info().Msgf("logger: level changed: level=%s", l)
}

func openOutput(output string) (io.Writer, bool, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, true, nil
	case "stderr":
		return os.Stderr, true, nil
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, errors.Wrap(err, "failed to create log directory")
		}
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to open log file")
	}
	return f, false, nil
}

// shortCaller keeps the package directory and file name.
func shortCaller(_ uintptr, file string, line int) string {
	dir, name := filepath.Split(file)
	return filepath.Join(filepath.Base(dir), name) + ":" + strconv.Itoa(line)
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
