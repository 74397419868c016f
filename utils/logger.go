// utils/logger.go
package utils

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Logger and verbosity are read from request and feed goroutines while
// tests swap them, so both live behind atomics.
var (
	verbose atomic.Bool
	logger  atomic.Pointer[log.Logger]
)

func init() {
	verbose.Store(true)
	logger.Store(newLogger(os.Stdout))
}

func newLogger(out io.Writer) *log.Logger {
	return log.New(out, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	logger.Load().Printf("[INFO] "+format, args...)
}

// LogDebug logs a debug message if verbose mode is enabled
func LogDebug(format string, args ...interface{}) {
	if verbose.Load() {
		logger.Load().Printf("[DEBUG] "+format, args...)
	}
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	logger.Load().Printf("[ERROR] "+format, args...)
}

// SetVerbose sets the verbose logging mode
func SetVerbose(v bool) {
	verbose.Store(v)
}

// GetVerbose returns the current verbose logging mode
func GetVerbose() bool {
	return verbose.Load()
}

// InitLogger configures verbosity and, when silent is set, discards all output.
// Tests use it to keep `go test` output readable.
func InitLogger(verboseMode bool, silent bool) {
	SetVerbose(verboseMode)
	var out io.Writer = os.Stdout
	if silent {
		out = io.Discard
	}
	logger.Store(newLogger(out))
}

// GetLogger returns the logger currently in use
func GetLogger() *log.Logger {
	return logger.Load()
}

// SetLogger replaces the logger, typically to restore one saved with GetLogger
func SetLogger(l *log.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// Contains checks if a string is in a slice
func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
