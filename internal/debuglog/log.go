// Package debuglog is the internal diagnostic logger. It is silent until a
// client enables debug output.
package debuglog

import (
	"io"
	"log"
	"sync"
)

const prefix = "[Sentry] "

var (
	mu      sync.RWMutex
	logger  = log.New(io.Discard, prefix, log.LstdFlags)
	enabled bool
)

// SetLogger replaces the current debug logger with a new one.
// Passing nil silences all output.
func SetLogger(l *log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
	enabled = l != nil && l.Writer() != io.Discard
}

// SetOutput keeps the current prefix and flags and redirects output to w.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	SetLogger(log.New(w, prefix, log.LstdFlags))
}

// GetLogger returns the current logger instance.
func GetLogger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Enabled reports whether messages are written anywhere.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

func current() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return nil
	}
	return logger
}

// Printf calls Printf on the underlying logger.
func Printf(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Printf(format, args...)
	}
}

// Println calls Println on the underlying logger.
func Println(args ...interface{}) {
	if l := current(); l != nil {
		l.Println(args...)
	}
}

// Print calls Print on the underlying logger.
func Print(args ...interface{}) {
	if l := current(); l != nil {
		l.Print(args...)
	}
}
