// Package logging wraps zerolog with subsystem-scoped loggers.
package logging

import (
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Levels lists the accepted level names, quietest first.
var Levels = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}

var levelValues = map[string]zerolog.Level{
	"silent": zerolog.Disabled,
	"fatal":  zerolog.FatalLevel,
	"error":  zerolog.ErrorLevel,
	"warn":   zerolog.WarnLevel,
	"info":   zerolog.InfoLevel,
	"debug":  zerolog.DebugLevel,
	"trace":  zerolog.TraceLevel,
}

// ValidLevel reports whether s names one of Levels, ignoring case.
func ValidLevel(s string) bool {
	return slices.Contains(Levels, strings.ToLower(s))
}

// Logger is a zerolog logger scoped to a subsystem of the router.
type Logger struct {
	zl zerolog.Logger
}

// New creates a console logger on w. A nil w writes to stderr.
func New(w io.Writer, level string) *Logger {
	return NewWithFormat(w, level, "text")
}

// NewWithFormat creates a logger in the given format. "json" writes one
// object per line; "text" uses the console writer on stderr when w is nil.
func NewWithFormat(w io.Writer, level, format string) *Logger {
	if w == nil {
		w = os.Stderr
		if !strings.EqualFold(format, "json") {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		}
	}
	lvl, ok := levelValues[strings.ToLower(level)]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	return &Logger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// Sub returns a child logger tagged with a subsystem name.
func (l *Logger) Sub(subsystem string) *Logger {
	return &Logger{zl: l.zl.With().Str("subsystem", subsystem).Logger()}
}

// Conversation tags entries with the channel and conversation they concern.
func (l *Logger) Conversation(channel, id string) *Logger {
	return &Logger{zl: l.zl.With().Str("channel", channel).Str("conversationId", id).Logger()}
}

// Correlate tags entries with the message id or call sid that caused them.
func (l *Logger) Correlate(id string) *Logger {
	return &Logger{zl: l.zl.With().Str("correlationId", id).Logger()}
}

func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
