// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	oarklog "github.com/oarkflow/log"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled, structured messages.  Each call takes a
// message followed by alternating key/value pairs:
//
//	logger.Info("client accepted", "addr", addr, "id", id)
//
// Output goes through oarkflow/log: JSON lines by default, a coloured
// console format after SetConsole(true).
type Logger struct {
	level  LogLevel
	mu     sync.Mutex
	sink   oarklog.Logger
	fields []interface{}
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug) to stderr.
func NewLogger(verbosity int) *Logger {
	l := &Logger{level: LogLevel(verbosity)}
	l.SetOutput(os.Stderr)
	return l
}

// SetOutput replaces the sink with a JSON writer on w.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = newSink(&oarklog.IOWriter{Writer: w})
}

// SetConsole switches stderr output to the human-readable console
// format, optionally coloured.
func (l *Logger) SetConsole(color bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = newSink(&oarklog.ConsoleWriter{
		ColorOutput:    color,
		EndWithMessage: true,
		Writer:         os.Stderr,
	})
}

func newSink(w oarklog.Writer) oarklog.Logger {
	return oarklog.Logger{
		Writer:       w,
		TimeFormat:   time.RFC3339,
		TimeLocation: time.UTC,
	}
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that adds keyvals to every entry.  The
// child shares the parent's sink.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	fields := make([]interface{}, 0, len(l.fields)+len(keyvals))
	fields = append(fields, l.fields...)
	fields = append(fields, keyvals...)
	return &Logger{level: l.level, sink: l.sink, fields: fields}
}

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	if l.level >= LogNormal {
		l.write(LogNormal, "info", msg, keyvals)
	}
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	if l.level >= LogNormal {
		l.write(LogNormal, "warn", msg, keyvals)
	}
}

// Verbose prints when verbosity ≥ 2.
func (l *Logger) Verbose(msg string, keyvals ...interface{}) {
	if l.level >= LogVerbose {
		l.write(LogVerbose, "info", msg, keyvals)
	}
}

// Debug prints when verbosity ≥ 3.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	if l.level >= LogDebug {
		l.write(LogDebug, "debug", msg, keyvals)
	}
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.write(LogQuiet, "error", msg, keyvals)
}

func (l *Logger) write(lvl LogLevel, severity, msg string, keyvals []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var e *oarklog.Entry
	switch severity {
	case "error":
		e = l.sink.Error()
	case "warn":
		e = l.sink.Warn()
	case "debug":
		e = l.sink.Debug()
	default:
		e = l.sink.Info()
	}
	if lvl == LogVerbose {
		e = e.Any("v", int(lvl))
	}
	e = addFields(e, l.fields)
	addFields(e, keyvals).Msg(msg)
}

func addFields(e *oarklog.Entry, keyvals []interface{}) *oarklog.Entry {
	for i := 0; i < len(keyvals)-1; i += 2 {
		e = e.Any(fmt.Sprint(keyvals[i]), keyvals[i+1])
	}
	return e
}
