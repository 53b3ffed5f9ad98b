package logging

import (
	"io"
	"os"
	"strings"
	"time"

	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
)

// Logger interface for structured logging
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// With returns a child logger carrying the given key/value pairs
	With(args ...any) Logger
}

// zeroLogger wraps zerolog.Logger to implement our Logger interface
type zeroLogger struct {
	logger zerolog.Logger
}

func (l *zeroLogger) Debug(msg string, args ...any) {
	l.logger.Debug().Fields(args).Msg(msg)
}

func (l *zeroLogger) Info(msg string, args ...any) {
	l.logger.Info().Fields(args).Msg(msg)
}

func (l *zeroLogger) Warn(msg string, args ...any) {
	l.logger.Warn().Fields(args).Msg(msg)
}

func (l *zeroLogger) Error(msg string, args ...any) {
	l.logger.Error().Fields(args).Msg(msg)
}

func (l *zeroLogger) With(args ...any) Logger {
	return &zeroLogger{logger: l.logger.With().Fields(args).Logger()}
}

// Options configures a Logger
type Options struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "text"
	Out    io.Writer
	// Ring, when set, receives a copy of every entry
	Ring *Ring
}

// New creates a structured logger based on configuration
func New(opts Options) Logger {
	return &zeroLogger{logger: newZerolog(opts)}
}

// Setup creates the process logger and routes the proving backend's own
// logs through it.
func Setup(level, format string, ring *Ring) Logger {
	zl := newZerolog(Options{Level: level, Format: format, Out: os.Stdout, Ring: ring})
	gnarklogger.Set(zl.With().Str("component", "gnark").Logger())
	return &zeroLogger{logger: zl}
}

// Nop discards everything
func Nop() Logger {
	return &zeroLogger{logger: zerolog.Nop()}
}

func newZerolog(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if strings.ToLower(opts.Format) != "json" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}
	}
	if opts.Ring != nil {
		out = zerolog.MultiLevelWriter(out, opts.Ring)
	}
	return zerolog.New(out).Level(parseLevel(opts.Level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
