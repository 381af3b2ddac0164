package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"example.com/quicfetch/internal/config"
)

// LogFields carries structured key/value context for a single log event.
type LogFields map[string]interface{}

// Logger is the structured logger used throughout the client. It wraps a
// zerolog.Logger so call sites deal only in LogFields and never in the
// backend's event builder.
type Logger struct {
	zl     zerolog.Logger
	output io.WriteCloser
	// fields are attached to every event emitted by this logger.
	fields LogFields
}

// NewLogger creates a Logger from the logging configuration. File targets are
// opened in append mode; "stdout" and "stderr" map to the process streams.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	var output io.WriteCloser
	switch {
	case cfg.Target == "stdout":
		output = os.Stdout
	case cfg.Target == "stderr", cfg.Target == "":
		output = os.Stderr
	case config.IsFilePath(cfg.Target):
		file, err := os.OpenFile(cfg.Target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Target, err)
		}
		output = file
	default:
		return nil, fmt.Errorf("invalid log target: %s", cfg.Target)
	}

	zl := zerolog.New(output).Level(zerologLevel(cfg.LogLevel)).With().Timestamp().Logger()
	return &Logger{zl: zl, output: output}, nil
}

// NewTestLogger returns a debug-level logger writing to w, for use in tests.
func NewTestLogger(w io.Writer) *Logger {
	zl := zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *Logger {
	return &Logger{zl: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}

func zerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelInfo:
		return zerolog.InfoLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child logger that attaches the given fields to every event.
func (l *Logger) With(fields LogFields) *Logger {
	merged := make(LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{zl: l.zl, output: l.output, fields: merged}
}

func (l *Logger) emit(ev *zerolog.Event, msg string, fields LogFields) {
	for k, v := range l.fields {
		ev = ev.Interface(k, v)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *Logger) Debug(msg string, fields LogFields) {
	l.emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields LogFields) {
	l.emit(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields LogFields) {
	l.emit(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields LogFields) {
	l.emit(l.zl.Error(), msg, fields)
}

// Close closes a file-backed log target. Stdout and stderr are left open.
func (l *Logger) Close() error {
	if l.output == nil || l.output == os.Stdout || l.output == os.Stderr {
		return nil
	}
	return l.output.Close()
}
