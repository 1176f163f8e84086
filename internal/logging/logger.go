// Package logging provides the leveled, structured logger used across gdfetch.
// Loggers carry an optional trace ID so every line of one fetch can be correlated.
package logging

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// LogLevel is the minimum severity a logger emits
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// levelVar is a LogLevel shared by a logger and its traced copies
type levelVar struct {
	v atomic.Int32
}

func newLevelVar(level LogLevel) *levelVar {
	lv := &levelVar{}
	lv.v.Store(int32(level))
	return lv
}

func (lv *levelVar) Level() LogLevel { return LogLevel(lv.v.Load()) }

func (lv *levelVar) Set(level LogLevel) { lv.v.Store(int32(level)) }

// ParseLogLevel maps a config string to a LogLevel. "quiet" maps to ERROR,
// "normal" to INFO and "verbose" to DEBUG.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "verbose":
		return DEBUG, nil
	case "info", "normal", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error", "quiet":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level: %s", s)
}

// Field is a single structured key/value attached to a log line
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for building a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// LogEntry is the JSON shape written by FileLogger
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"traceId,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger is implemented by every sink in this package
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithTraceID(traceID string) Logger
	WithContext(ctx context.Context) Logger
	SetLevel(level LogLevel)
	Close() error
}

type traceIDKey struct{}

// ContextWithTraceID returns a context carrying traceID
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID stored in ctx, or ""
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}
