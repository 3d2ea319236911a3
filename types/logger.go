package types

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// Logger writes every record to the durable log file and, unless quiet, to
// the interactive stream. The file writer is plain (no color) so the log can
// be pasted into bug reports untouched.
type Logger struct {
	zerolog.Logger
	fileLock *flock.Flock
	logFile  *os.File
}

// NewLogger creates a logger appending to logPath. The level defaults to
// info and can be overridden by the PROVISIONER_DEBUG environment variable.
func NewLogger(logPath, level string, quiet, noColor bool) Logger {
	var writers []io.Writer
	var fileLock *flock.Flock
	var logFile *os.File

	if logPath != "" {
		_ = os.MkdirAll(filepath.Dir(logPath), 0o755)
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			logFile = f
			writers = append(writers, zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339, NoColor: true})
			fileLock = flock.New(logPath + ".lock")
		}
	}

	if !quiet {
		writers = append(writers, zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = time.RFC3339
			w.NoColor = noColor
		}))
	}

	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}
	if os.Getenv("PROVISIONER_DEBUG") != "" {
		l = zerolog.DebugLevel
	}

	multi := zerolog.MultiLevelWriter(writers...)
	return Logger{
		Logger:   zerolog.New(multi).With().Timestamp().Logger().Level(l),
		fileLock: fileLock,
		logFile:  logFile,
	}
}

// NewBufferLogger returns a logger writing to b, for tests.
func NewBufferLogger(b *bytes.Buffer) Logger {
	return Logger{Logger: zerolog.New(b).With().Timestamp().Logger()}
}

// NewNullLogger returns a logger that discards everything.
func NewNullLogger() Logger {
	return Logger{Logger: zerolog.New(io.Discard).With().Timestamp().Logger()}
}

// Close releases the durable log file.
func (l *Logger) Close() {
	if l.fileLock != nil {
		_ = l.fileLock.Lock()
		defer func() {
			_ = l.fileLock.Unlock()
		}()
	}
	if l.logFile != nil {
		_ = l.logFile.Close()
		l.logFile = nil
	}
}

// IsDebug reports whether debug records are emitted.
func (l Logger) IsDebug() bool {
	return l.Logger.GetLevel() <= zerolog.DebugLevel
}

func (l Logger) Infof(tpl string, args ...interface{}) {
	l.locked(func() { l.Logger.Info().Msg(fmt.Sprintf(tpl, args...)) })
}

func (l Logger) Warnf(tpl string, args ...interface{}) {
	l.locked(func() { l.Logger.Warn().Msg(fmt.Sprintf(tpl, args...)) })
}

func (l Logger) Errorf(tpl string, args ...interface{}) {
	l.locked(func() { l.Logger.Error().Msg(fmt.Sprintf(tpl, args...)) })
}

func (l Logger) Debugf(tpl string, args ...interface{}) {
	l.locked(func() { l.Logger.Debug().Msg(fmt.Sprintf(tpl, args...)) })
}

// WouldPerform emits the single structured line that stands in for a
// mutating call under dry-run.
func (l Logger) WouldPerform(description string) {
	l.locked(func() {
		l.Logger.Info().Str("mode", "dry-run").Msg("would perform: " + description)
	})
}

// Tail logs the last diagnostic lines of a failed external tool, one record
// per line, so they land in the durable log as well as the console.
func (l Logger) Tail(tool string, lines []string) {
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		l.Errorf("%s: %s", tool, line)
	}
}

func (l Logger) locked(fn func()) {
	if l.fileLock != nil {
		_ = l.fileLock.Lock()
		defer func() {
			_ = l.fileLock.Unlock()
		}()
	}
	fn()
}
