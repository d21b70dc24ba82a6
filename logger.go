package gerbang

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Logger is the minimal structured logging interface used for debug output.
// Arguments after the message are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DebugConfig controls what the pipeline logs when debugging is enabled.
// Each flag gates one concern so noisy stages can be silenced individually.
type DebugConfig struct {
	Enabled       bool
	LogRejections bool
	LogRateLimit  bool
	LogCircuit    bool
	LogBulkhead   bool
	LogCoalescing bool

	// RequestIDGen produces the correlation ID attached to every debug line
	// for a request.
	RequestIDGen func() string
}

// DefaultDebugConfig returns a DebugConfig with all concerns enabled and a
// UUID request ID generator.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:       false,
		LogRejections: true,
		LogRateLimit:  true,
		LogCircuit:    true,
		LogBulkhead:   true,
		LogCoalescing: true,
		RequestIDGen:  uuid.NewString,
	}
}

// SimpleLogger writes key=value formatted lines to stderr.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a console logger suitable for development use.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// Debug logs a debug level message.
func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logWith("DEBUG", msg, keysAndValues...)
}

// Info logs an info level message.
func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logWith("INFO", msg, keysAndValues...)
}

// Warn logs a warning level message.
func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWith("WARN", msg, keysAndValues...)
}

// Error logs an error level message.
func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logWith("ERROR", msg, keysAndValues...)
}

func (l *SimpleLogger) logWith(level, msg string, keysAndValues ...interface{}) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	if len(keysAndValues)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", keysAndValues[len(keysAndValues)-1])
	}
	l.logger.Print(b.String())
}
