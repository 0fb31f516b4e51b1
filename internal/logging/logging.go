// Package logging wraps charmbracelet/log behind a small AppLogger type so
// the rest of the server logs through one structured interface.
//
// The server talks MCP over HTTP, but diagnostics still go to stderr (or a
// debug file) and must never mix into protocol output.
package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// AppLogger is the structured logger used across the server.
type AppLogger struct {
	logger *log.Logger
	debug  bool
}

var (
	defaultLogger *AppLogger
	once          sync.Once
)

// GetDefault returns the process-wide logger, creating it on first use.
func GetDefault() *AppLogger {
	once.Do(func() {
		defaultLogger = NewAppLogger()
	})
	return defaultLogger
}

// Package-level convenience functions for quick logging.
func Info(msg string, keyvals ...interface{})  { GetDefault().Info(msg, keyvals...) }
func Warn(msg string, keyvals ...interface{})  { GetDefault().Warn(msg, keyvals...) }
func Error(msg string, keyvals ...interface{}) { GetDefault().Error(msg, keyvals...) }
func Debug(msg string, keyvals ...interface{}) { GetDefault().Debug(msg, keyvals...) }

// NewAppLogger builds a logger from the environment. With DEBUG set it logs
// everything to membankd.log in the working directory (truncated per run);
// otherwise it logs warnings and errors to stderr.
func NewAppLogger() *AppLogger {
	debug := os.Getenv("DEBUG") != ""

	var logger *log.Logger

	if debug {
		cwd, err := os.Getwd()
		if err != nil {
			panic(fmt.Sprintf("failed to get current working directory: %v", err))
		}

		logPath := filepath.Join(cwd, "membankd.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			panic(fmt.Sprintf("failed to create debug log file: %v", err))
		}

		logger = log.NewWithOptions(logFile, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			Prefix:          "membankd",
		})
		logger.SetLevel(log.DebugLevel)
		logger.Info("Debug logging enabled", "log_file", logPath)
	} else {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "membankd",
		})
		logger.SetLevel(log.WarnLevel)
	}

	return &AppLogger{logger: logger, debug: debug}
}

// NewVerboseLogger logs everything at info level and above to stderr. Used
// when the server options enable verbose logging.
func NewVerboseLogger() *AppLogger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "membankd",
	})
	logger.SetLevel(log.InfoLevel)
	return &AppLogger{logger: logger, debug: false}
}

func (al *AppLogger) Info(msg string, keyvals ...interface{}) {
	al.logger.Info(msg, keyvals...)
}

func (al *AppLogger) Warn(msg string, keyvals ...interface{}) {
	al.logger.Warn(msg, keyvals...)
}

func (al *AppLogger) Error(msg string, keyvals ...interface{}) {
	al.logger.Error(msg, keyvals...)
}

func (al *AppLogger) Debug(msg string, keyvals ...interface{}) {
	al.logger.Debug(msg, keyvals...)
}

// LogPerformance records the duration of an operation at debug level.
func (al *AppLogger) LogPerformance(operation string, start time.Time) {
	if al.debug {
		al.logger.Debug("Performance", "operation", operation, "duration", time.Since(start))
	}
}

// NewTestLogger creates a logger that writes to a buffer for assertions.
func NewTestLogger() (*AppLogger, *bytes.Buffer) {
	var buf bytes.Buffer

	logger := log.NewWithOptions(&buf, log.Options{
		ReportTimestamp: false,
		ReportCaller:    false,
		Prefix:          "test",
	})
	logger.SetLevel(log.DebugLevel)

	return &AppLogger{logger: logger, debug: true}, &buf
}
