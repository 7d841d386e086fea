package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/mattn/go-isatty"
)

// slog has no trace level, so trace sits one step below debug.
const slogLevelTrace = slog.LevelDebug - 4

type slogLogger struct {
	handler slog.Handler
	level   LogLevel
	prefix  string
}

var _ Logger = (*slogLogger)(nil)

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelTrace:
		return slogLevelTrace
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// NewSinkLogger returns a Logger writing to sink. When json is true records are
// emitted as JSON lines, otherwise as logfmt-style text.
func NewSinkLogger(sink io.Writer, level LogLevel, json bool) Logger {
	opts := &slog.HandlerOptions{
		Level: toSlogLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == slogLevelTrace {
					return slog.String(slog.LevelKey, "TRACE")
				}
			}
			return a
		},
	}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(sink, opts)
	} else {
		handler = slog.NewTextHandler(sink, opts)
	}
	return &slogLogger{handler: handler, level: level}
}

// NewConsoleLogger returns a Logger writing to stdout. Text output is used when
// stdout is a terminal and JSON lines otherwise.
func NewConsoleLogger(levels ...LogLevel) Logger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return NewSinkLogger(os.Stdout, level, !tty)
}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger {
	return NewSinkLogger(io.Discard, LevelNone, true)
}

func (l *slogLogger) With(metadata map[string]interface{}) Logger {
	if len(metadata) == 0 {
		return l
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, metadata[k]))
	}
	return &slogLogger{handler: l.handler.WithAttrs(attrs), level: l.level, prefix: l.prefix}
}

func (l *slogLogger) WithPrefix(prefix string) Logger {
	return &slogLogger{handler: l.handler, level: l.level, prefix: l.prefix + prefix + " "}
}

func (l *slogLogger) IsLevelEnabled(level LogLevel) bool {
	return l.level != LevelNone && level >= l.level
}

func (l *slogLogger) log(level LogLevel, msg string, args ...interface{}) {
	if !l.IsLevelEnabled(level) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	rec := slog.NewRecord(time.Now(), toSlogLevel(level), l.prefix+msg, 0)
	_ = l.handler.Handle(context.Background(), rec)
}

func (l *slogLogger) Trace(msg string, args ...interface{}) { l.log(LevelTrace, msg, args...) }
func (l *slogLogger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args...) }
func (l *slogLogger) Info(msg string, args ...interface{})  { l.log(LevelInfo, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...interface{})  { l.log(LevelWarn, msg, args...) }
func (l *slogLogger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args...) }
