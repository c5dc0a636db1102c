// Package logging adapts zerolog to datacopy.Logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/getpup/datacopy"
)

// Options configures a logger.
type Options struct {
	// Level is a zerolog level name. Unknown names fall back to info.
	Level string

	// Console receives human-readable output (default: os.Stderr).
	Console io.Writer

	// File, when set, also receives JSON lines, rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger implements datacopy.Logger on top of zerolog.
type Logger struct {
	zl     zerolog.Logger
	closer io.Closer
}

var _ datacopy.Logger = (*Logger)(nil)

// New creates a logger writing to the console and, optionally, to a rotated file.
func New(opts Options) (*Logger, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}

	var closer io.Closer
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log folder: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, file)
		closer = file
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl, closer: closer}, nil
}

// Wrap adapts an existing zerolog logger.
func Wrap(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	l.zl.Debug().Fields(fields(keyvals)).Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	l.zl.Info().Fields(fields(keyvals)).Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string, keyvals ...interface{}) {
	l.zl.Warn().Fields(fields(keyvals)).Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	l.zl.Error().Fields(fields(keyvals)).Msg(msg)
}

// fields turns alternating keys and values into a map.
// Non-string keys are formatted and a trailing key without a value gets "(MISSING)".
func fields(keyvals []interface{}) map[string]interface{} {
	if len(keyvals) == 0 {
		return nil
	}
	out := make(map[string]interface{}, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if i+1 >= len(keyvals) {
			out[key] = "(MISSING)"
			break
		}
		v := keyvals[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[key] = v
	}
	return out
}
