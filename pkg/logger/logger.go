// Package logger assembles the zerolog loggers the daemon and tests write
// to. Library types take an injected zerolog.Logger and default to Nop.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const permission = 0o664

// LogBuild collects destination, level and format before Make assembles the
// logger.
type LogBuild struct {
	writer io.Writer
	path   string
	level  string
	format string
}

// LogData couples the assembled logger with the file it appends to when a
// path was configured. The caller owns closing it.
type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

func New() *LogBuild {
	return &LogBuild{}
}

// FromPath appends log lines to the file at path.
func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

// FromWriter sends log lines to w. A configured path wins over w.
func (build *LogBuild) FromWriter(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// WithLevel sets the minimum level (trace, debug, info, warn, error).
// Empty means info.
func (build *LogBuild) WithLevel(level string) *LogBuild {
	build.level = level
	return build
}

// WithFormat picks the line format: "json" (the default) or "console".
func (build *LogBuild) WithFormat(format string) *LogBuild {
	build.format = format
	return build
}

func (build *LogBuild) Make() (*LogData, error) {
	logData := new(LogData)

	writer := build.writer
	if writer == nil {
		writer = os.Stdout
	}
	if build.path != "" {
		f, err := os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		logData.LogFile = f
		writer = zerolog.SyncWriter(f)
	}

	switch strings.ToLower(build.format) {
	case "", "json":
	case "console":
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	default:
		return nil, fmt.Errorf("unknown log format %q", build.format)
	}

	level := zerolog.InfoLevel
	if build.level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(build.level))
		if err != nil {
			return nil, err
		}
	}

	logData.Logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return logData, nil
}

// Close closes the log file, when one was opened.
func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}

// Nop returns a logger that discards everything.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
