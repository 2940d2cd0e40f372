// Package logging provides the structured logger used by the udiff command.
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	// LevelOff disables logging entirely.
	LevelOff Level = "OFF"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelOff:   4,
}

// ParseLevel converts a level name into a Level. Matching is case-insensitive.
func ParseLevel(name string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := levelRank[level]; !ok {
		return "", fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// Field is a key-value pair in structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a Field from a key-value pair.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger provides structured logging with context support.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, err error, fields ...Field)
	WithFields(fields ...Field) Logger
}

// NoOpLogger discards all log entries.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(_ context.Context, _ string, _ ...Field)          {}
func (n *NoOpLogger) Info(_ context.Context, _ string, _ ...Field)           {}
func (n *NoOpLogger) Warn(_ context.Context, _ string, _ ...Field)           {}
func (n *NoOpLogger) Error(_ context.Context, _ string, _ error, _ ...Field) {}
func (n *NoOpLogger) WithFields(_ ...Field) Logger                           { return n }

// StdLogger writes one line per entry:
//
//	[2024-01-02T15:04:05Z] [WARN] [error="..."] message fields=[k=v ...]
type StdLogger struct {
	fields   []Field
	minLevel Level
	logger   *log.Logger
	now      func() time.Time
}

// New returns the logger for minLevel: a NoOpLogger when logging is off, otherwise
// a StdLogger writing to writer.
func New(minLevel Level, writer io.Writer) Logger {
	if minLevel == LevelOff {
		return &NoOpLogger{}
	}
	return NewStdLogger(minLevel, writer)
}

// NewStdLogger creates a logger writing entries at or above minLevel. A nil writer
// discards everything.
func NewStdLogger(minLevel Level, writer io.Writer) *StdLogger {
	if writer == nil {
		writer = io.Discard
	}
	if _, ok := levelRank[minLevel]; !ok {
		minLevel = LevelWarn
	}
	return &StdLogger{
		minLevel: minLevel,
		logger:   log.New(writer, "", 0),
		now:      time.Now,
	}
}

// NewFileWriter returns a size-rotated log file writer.
func NewFileWriter(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}

func (s *StdLogger) log(ctx context.Context, level Level, msg string, err error, fields ...Field) {
	if levelRank[level] < levelRank[s.minLevel] {
		return
	}

	all := make([]Field, 0, len(s.fields)+len(fields)+1)
	all = append(all, s.fields...)
	all = append(all, fields...)
	if traceID := TraceID(ctx); traceID != "" {
		all = append(all, F("trace_id", traceID))
	}

	parts := []string{
		fmt.Sprintf("[%s]", s.now().Format(time.RFC3339)),
		fmt.Sprintf("[%s]", level),
	}
	if err != nil {
		parts = append(parts, fmt.Sprintf("[error=%q]", err.Error()))
	}
	parts = append(parts, msg)

	if len(all) > 0 {
		fieldParts := make([]string, 0, len(all))
		for _, f := range all {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%v", f.Key, f.Value))
		}
		parts = append(parts, fmt.Sprintf("fields=[%s]", strings.Join(fieldParts, " ")))
	}

	s.logger.Println(strings.Join(parts, " "))
}

func (s *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, LevelDebug, msg, nil, fields...)
}

func (s *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, LevelInfo, msg, nil, fields...)
}

func (s *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, LevelWarn, msg, nil, fields...)
}

func (s *StdLogger) Error(ctx context.Context, msg string, err error, fields ...Field) {
	s.log(ctx, LevelError, msg, err, fields...)
}

func (s *StdLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(s.fields)+len(fields))
	merged = append(merged, s.fields...)
	merged = append(merged, fields...)
	return &StdLogger{
		fields:   merged,
		minLevel: s.minLevel,
		logger:   s.logger,
		now:      s.now,
	}
}

type traceIDKey struct{}

// WithTraceID adds a trace ID to the context for log correlation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceID extracts the trace ID from context, if present.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// NewTraceID creates a trace ID for one command invocation.
func NewTraceID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
