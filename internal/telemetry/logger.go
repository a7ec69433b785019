package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// Logger wraps zerolog.Logger. Besides the structured helpers it offers the
// printf-style Debug/Info/Warn/Error methods the parser chain and the
// engine use.
type Logger struct {
	zlog zerolog.Logger
	file *os.File
}

// NewLogger creates a logger from the log section of the configuration
func NewLogger(cfg models.LogConfig) (*Logger, error) {
	var writer io.Writer
	var file *os.File
	switch cfg.Output {
	case "", "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writer = f
		file = f
	}

	if cfg.Format != "json" {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.Kitchen,
			NoColor:    file != nil,
		}
	}

	zlog := zerolog.New(writer).With().Timestamp().Logger().Level(ParseLevel(cfg.Level))
	return &Logger{zlog: zlog, file: file}, nil
}

// NewWriterLogger creates a JSON logger on w, mostly useful in tests
func NewWriterLogger(w io.Writer, level string) *Logger {
	return &Logger{zlog: zerolog.New(w).Level(ParseLevel(level))}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Component creates a child logger tagged with a component name
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// WithField returns a logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger()}
}

// WithSession adds a session_id field to the logger
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("session_id", id).Logger()}
}

// Zerolog exposes the underlying logger for structured events
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// ParseLevel converts a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
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
