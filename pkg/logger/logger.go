// Package logger builds the process-wide *slog.Logger. Domain attribute
// helpers keep key names consistent across packages.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format selects the handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseLevel parses "debug", "info", "warn"/"warning" or "error". Anything
// else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options configures New.
type Options struct {
	Output    io.Writer
	Level     slog.Level
	Format    Format
	AddSource bool

	// Attrs are attached to every record, e.g. service name and version.
	Attrs []slog.Attr
}

// DefaultOptions returns text output at info level on stdout.
func DefaultOptions() Options {
	return Options{
		Output: os.Stdout,
		Level:  slog.LevelInfo,
		Format: FormatText,
	}
}

// New creates a logger from opts.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.Format == FormatJSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	if len(opts.Attrs) > 0 {
		handler = handler.WithAttrs(opts.Attrs)
	}
	return slog.New(handler)
}

// ForEnvironment returns a JSON logger with source locations in production
// and a text logger elsewhere.
func ForEnvironment(env, level string, attrs ...slog.Attr) *slog.Logger {
	opts := DefaultOptions()
	opts.Level = ParseLevel(level)
	opts.Attrs = attrs
	if env == "production" {
		opts.Format = FormatJSON
		opts.AddSource = true
	}
	return New(opts)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// ─────────────────────────────────────────────────────────────────────────────
// Attributes
// ─────────────────────────────────────────────────────────────────────────────

// Err returns the "error" attribute; nil errors log as an empty string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func ProgramID(id int64) slog.Attr        { return slog.Int64("program_id", id) }
func CourseID(id int64) slog.Attr         { return slog.Int64("course_id", id) }
func OutcomeID(id int64) slog.Attr        { return slog.Int64("outcome_id", id) }
func ProgramOutcomeID(id int64) slog.Attr { return slog.Int64("program_outcome_id", id) }
func StudentID(id int64) slog.Attr        { return slog.Int64("student_id", id) }
func RuleID(id int64) slog.Attr           { return slog.Int64("rule_id", id) }
func Component(name string) slog.Attr     { return slog.String("component", name) }
func Operation(name string) slog.Attr     { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr   { return slog.Duration("latency", d) }
