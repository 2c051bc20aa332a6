package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger interface for structured logging. Fields are alternating key/value pairs.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, err error, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, err error, fields ...interface{})
}

// SimpleLogger implements Logger with basic Go logging
type SimpleLogger struct {
	component   string
	debug       bool
	infoLogger  *log.Logger
	errorLogger *log.Logger
	warnLogger  *log.Logger
	debugLogger *log.Logger
}

// NewSimpleLogger creates a logger whose lines carry the component name
func NewSimpleLogger(component string) Logger {
	return newSimpleLogger(component, os.Stdout, os.Stderr, os.Getenv("LOG_LEVEL") == "debug")
}

func newSimpleLogger(component string, out, errOut io.Writer, debug bool) *SimpleLogger {
	flags := log.Ldate | log.Ltime | log.Lmsgprefix
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return &SimpleLogger{
		component:   component,
		debug:       debug,
		infoLogger:  log.New(out, "INFO: "+prefix, flags),
		errorLogger: log.New(errOut, "ERROR: "+prefix, flags),
		warnLogger:  log.New(out, "WARN: "+prefix, flags),
		debugLogger: log.New(out, "DEBUG: "+prefix, flags),
	}
}

// Info logs an info message
func (l *SimpleLogger) Info(msg string, fields ...interface{}) {
	l.infoLogger.Print(msg + formatFields(fields))
}

// Error logs an error message
func (l *SimpleLogger) Error(msg string, err error, fields ...interface{}) {
	l.errorLogger.Printf("%s: %v%s", msg, err, formatFields(fields))
}

// Warn logs a warning message
func (l *SimpleLogger) Warn(msg string, fields ...interface{}) {
	l.warnLogger.Print(msg + formatFields(fields))
}

// Debug logs a debug message when LOG_LEVEL=debug
func (l *SimpleLogger) Debug(msg string, fields ...interface{}) {
	if !l.debug {
		return
	}
	l.debugLogger.Print(msg + formatFields(fields))
}

// Fatal logs a fatal error and exits
func (l *SimpleLogger) Fatal(msg string, err error, fields ...interface{}) {
	l.errorLogger.Fatalf("%s: %v%s", msg, err, formatFields(fields))
}

// formatFields renders key/value pairs as " key=value key=value"
func formatFields(fields []interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(fields); i += 2 {
		b.WriteByte(' ')
		if i+1 < len(fields) {
			fmt.Fprintf(&b, "%v=%v", fields[i], fields[i+1])
		} else {
			fmt.Fprintf(&b, "%v", fields[i])
		}
	}
	return b.String()
}

// NopLogger discards everything; used by tests
type NopLogger struct{}

func (NopLogger) Info(string, ...interface{})         {}
func (NopLogger) Error(string, error, ...interface{}) {}
func (NopLogger) Warn(string, ...interface{})         {}
func (NopLogger) Debug(string, ...interface{})        {}
func (NopLogger) Fatal(msg string, err error, _ ...interface{}) {
	log.Fatalf("%s: %v", msg, err)
}
