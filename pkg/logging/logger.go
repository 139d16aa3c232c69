// Package logging provides the service's structured logging interface.
// Unlike a console-oriented library logger, this one emits one JSON object
// per line, since every caller is an HTTP service whose logs are meant to
// be shipped to an aggregator rather than read directly off a terminal.
package logging

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the structured logging interface used throughout the service.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)

	// With returns a derived logger carrying additional key-value pairs on
	// every subsequent log line.
	With(keyvals ...any) Logger

	// WithError returns a derived logger carrying err's detail. When err is
	// an *apperr.StoreError its Op and Kind are surfaced as their own
	// fields, so a log line can be filtered by error kind without parsing
	// the message string.
	WithError(err error) Logger
}

type defaultLogger struct {
	mu       sync.Mutex
	writer   io.Writer
	minLevel Level
	fields   []any
}

// New creates a Logger writing JSON lines to w, filtering anything below
// minLevel.
func New(w io.Writer, minLevel Level) Logger {
	return &defaultLogger{writer: w, minLevel: minLevel}
}

// NewStd creates a Logger writing to stdout.
func NewStd(minLevel Level) Logger {
	return New(os.Stdout, minLevel)
}

func (l *defaultLogger) Debug(msg string, keyvals ...any) { l.log(LevelDebug, msg, keyvals...) }
func (l *defaultLogger) Info(msg string, keyvals ...any)  { l.log(LevelInfo, msg, keyvals...) }
func (l *defaultLogger) Warn(msg string, keyvals ...any)  { l.log(LevelWarn, msg, keyvals...) }
func (l *defaultLogger) Error(msg string, keyvals ...any) { l.log(LevelError, msg, keyvals...) }

func (l *defaultLogger) With(keyvals ...any) Logger {
	return &defaultLogger{writer: l.writer, minLevel: l.minLevel, fields: append(append([]any{}, l.fields...), keyvals...)}
}

func (l *defaultLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	fields := []any{"error", err.Error()}
	var storeErr *apperr.StoreError
	if errors.As(err, &storeErr) {
		fields = append(fields, "op", storeErr.Op, "kind", storeErr.Kind.Error())
	}
	return l.With(fields...)
}

func (l *defaultLogger) log(level Level, msg string, keyvals ...any) {
	if level < l.minLevel {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	line := map[string]any{
		"time":  time.Now().Format(time.RFC3339Nano),
		"level": level.String(),
		"msg":   msg,
	}
	for i := 0; i+1 < len(l.fields); i += 2 {
		line[keyString(l.fields[i])] = l.fields[i+1]
	}
	for i := 0; i+1 < len(keyvals); i += 2 {
		line[keyString(keyvals[i])] = keyvals[i+1]
	}

	enc := json.NewEncoder(l.writer)
	if err := enc.Encode(line); err != nil {
		// Encoding failures here would otherwise be silently swallowed;
		// fall back to a minimal line rather than lose the message.
		io.WriteString(l.writer, msg+"\n")
	}
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmtSprint(k)
}

func fmtSprint(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(b)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)     {}
func (nopLogger) Info(string, ...any)      {}
func (nopLogger) Warn(string, ...any)      {}
func (nopLogger) Error(string, ...any)     {}
func (n nopLogger) With(...any) Logger     { return n }
func (n nopLogger) WithError(error) Logger { return n }

// Nop returns a Logger that discards everything, for tests.
func Nop() Logger { return nopLogger{} }
