// file: nats-micro/pkg/x_log/x_log.go

// Package x_log provides structured logging over zap with console
// styling support. The framework logs through the process-wide logger
// returned by L; hosts can swap it with SetGlobal.
package x_log

import (
	"strings"
	"sync"
)

type Level int8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Logger is the logging surface used throughout the module.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)

	// Named returns a child logger with name appended to the logger
	// chain.
	Named(name string) Logger
}

var (
	globalMu sync.RWMutex
	global   Logger
)

func init() {
	global = New(LoadConfigFromEnv())
}

// SetGlobal replaces the process-wide logger.
func SetGlobal(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

// L returns the process-wide logger.
func L() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debugw(string, ...any) {}
func (nopLogger) Infow(string, ...any)  {}
func (nopLogger) Warnw(string, ...any)  {}
func (nopLogger) Errorw(string, ...any) {}
func (nopLogger) Named(string) Logger   { return nopLogger{} }

// ParseLevel maps a level name to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}
