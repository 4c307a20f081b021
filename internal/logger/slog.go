package logger

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// slogLogger implementation of Logger interface based on slog
type slogLogger struct {
	logger *slog.Logger
}

func newSlogLogger(h slog.Handler) *slogLogger {
	return &slogLogger{logger: slog.New(h)}
}

// logWithSource handles correct source information by skipping wrapper frames
func (l *slogLogger) logWithSource(level slog.Level, msg string, args ...any) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}

	var pc uintptr
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	pc = pcs[0]

	record := slog.NewRecord(time.Now(), level, msg, pc)
	record.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), record)
}

func (l *slogLogger) Debug(msg string, args ...any) {
	l.logWithSource(slog.LevelDebug, msg, args...)
}

func (l *slogLogger) Info(msg string, args ...any) {
	l.logWithSource(slog.LevelInfo, msg, args...)
}

func (l *slogLogger) Warn(msg string, args ...any) {
	l.logWithSource(slog.LevelWarn, msg, args...)
}

func (l *slogLogger) Error(msg string, args ...any) {
	l.logWithSource(slog.LevelError, msg, args...)
}

// With returns a logger with additional key-value pairs
func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}

// WithGroup returns a logger with attributes grouped under the given name
func (l *slogLogger) WithGroup(name string) Logger {
	return &slogLogger{logger: l.logger.WithGroup(name)}
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo:
		return slog.LevelInfo, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// Attribute keys holding credentials. Tokens keep a short tail so records can be matched to a session
var secretKeys = map[string]bool{
	"password": true,
	"token":    true,
	"access":   true,
	"refresh":  true,
}

const tokenTail = 6

// replaceAttr masks credentials and shortens source to package/file:line
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch {
	case a.Key == slog.SourceKey:
		source, ok := a.Value.Any().(*slog.Source)
		if ok {
			source.File = filepath.Join(filepath.Base(filepath.Dir(source.File)), filepath.Base(source.File))
		}
	case secretKeys[strings.ToLower(a.Key)]:
		a.Value = redact(a.Key, a.Value)
	}

	return a
}

func redact(key string, v slog.Value) slog.Value {
	s := v.String()
	if strings.EqualFold(key, "password") || len(s) <= 2*tokenTail {
		return slog.StringValue("[redacted]")
	}
	return slog.StringValue("[redacted]" + s[len(s)-tokenTail:])
}
