package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var std = newStd()

func newStd() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

func (l Level) String() string {
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

func (l Level) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return
	}
	std.SetLevel(lvl.logrus())
}

// SetFormat switches between "text" and "json" output.
func SetFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		std.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	case "json":
		std.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// SetOutput directs log output to "stdout", "stderr" or a file path.
//
// The returned closer releases the file when a path was given; for the
// standard streams it is a no-op.
func SetOutput(output string) (io.Closer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		std.SetOutput(os.Stdout)
		return nopCloser{}, nil
	case "stderr":
		std.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	std.SetOutput(f)
	return f, nil
}

// SetWriter redirects output to w. Used by tests.
func SetWriter(w io.Writer) {
	std.SetOutput(w)
}

// Logrus exposes the underlying logger for libraries that accept a
// printf-style logger (badger).
func Logrus() *logrus.Logger {
	return std
}

// With returns an entry carrying structured fields.
func With(fields map[string]any) *logrus.Entry {
	return std.WithFields(logrus.Fields(fields))
}

func Debug(format string, v ...any) {
	std.Debugf(format, v...)
}

func Info(format string, v ...any) {
	std.Infof(format, v...)
}

func Warn(format string, v ...any) {
	std.Warnf(format, v...)
}

func Error(format string, v ...any) {
	std.Errorf(format, v...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
