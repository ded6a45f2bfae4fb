package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ParseLevel converts a level name (case-insensitive) into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects the slog handler used for output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SyncWriter serializes writes to the underlying writer. Every slog record is
// emitted with a single Write call, so sharing one SyncWriter between the
// logger and the console reporter keeps lines from tearing under concurrency.
type SyncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSyncWriter wraps w. Wrapping an existing SyncWriter returns it unchanged.
func NewSyncWriter(w io.Writer) *SyncWriter {
	if sw, ok := w.(*SyncWriter); ok {
		return sw
	}
	return &SyncWriter{w: w}
}

// Write implements io.Writer.
func (s *SyncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

var (
	defaultLogger atomic.Pointer[slog.Logger]
	output        atomic.Pointer[SyncWriter]
)

func init() {
	Init(LevelInfo, FormatText, os.Stderr)
}

// Init configures the process-wide logger. It returns the synchronized writer
// the handler writes to so other console output can share it.
func Init(level LogLevel, format Format, w io.Writer) *SyncWriter {
	sw := NewSyncWriter(w)
	opts := &slog.HandlerOptions{
		Level: level.SlogLevel(), // This sets the minimum level for the handler
	}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(sw, opts)
	default:
		handler = slog.NewTextHandler(sw, opts)
	}

	logger := slog.New(handler)
	defaultLogger.Store(logger)
	output.Store(sw)
	slog.SetDefault(logger)
	return sw
}

// InitForCLI initializes the logging system with the text handler.
func InitForCLI(filterLevel LogLevel, w io.Writer) {
	Init(filterLevel, FormatText, w)
}

// Output returns the synchronized writer the logger currently writes to.
func Output() io.Writer {
	return output.Load()
}

// Enabled reports whether messages at level would be emitted.
func Enabled(level LogLevel) bool {
	return defaultLogger.Load().Enabled(context.Background(), level.SlogLevel())
}

func logInternal(level LogLevel, subsystem string, attrs []slog.Attr, err error, messageFmt string, args ...interface{}) {
	logger := defaultLogger.Load()
	if !logger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	slogAttrs := make([]slog.Attr, 0, len(attrs)+2)
	slogAttrs = append(slogAttrs, slog.String("subsystem", subsystem))
	slogAttrs = append(slogAttrs, attrs...)
	if err != nil {
		slogAttrs = append(slogAttrs, slog.String("error", err.Error()))
	}

	logger.LogAttrs(context.Background(), level.SlogLevel(), msg, slogAttrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, nil, err, messageFmt, args...)
}

// Scope carries the job and case a log line belongs to. The zero value of
// each field is omitted from the output.
type Scope struct {
	subsystem string
	job       string
	caseName  string
}

// For returns a scope for subsystem.
func For(subsystem string) Scope {
	return Scope{subsystem: subsystem}
}

// WithJob returns a copy of s tagged with a job id.
func (s Scope) WithJob(jobID string) Scope {
	s.job = jobID
	return s
}

// WithCase returns a copy of s tagged with a test case name.
func (s Scope) WithCase(name string) Scope {
	s.caseName = name
	return s
}

func (s Scope) attrs() []slog.Attr {
	var attrs []slog.Attr
	if s.job != "" {
		attrs = append(attrs, slog.String("job", s.job))
	}
	if s.caseName != "" {
		attrs = append(attrs, slog.String("case", s.caseName))
	}
	return attrs
}

func (s Scope) Debug(messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, s.subsystem, s.attrs(), nil, messageFmt, args...)
}

func (s Scope) Info(messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, s.subsystem, s.attrs(), nil, messageFmt, args...)
}

func (s Scope) Warn(messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, s.subsystem, s.attrs(), nil, messageFmt, args...)
}

func (s Scope) Error(err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, s.subsystem, s.attrs(), err, messageFmt, args...)
}
