// Package logger is the process-wide structured logger. Every function is a
// no-op until Init runs, so library packages and tests log freely.
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/zfogg/sidechain/chat/pkg/config"
)

var logger *log.Logger

// Init initializes the logger. Verbose forces debug level, otherwise log.level applies.
func Init(verbose bool) {
	logLevel, err := log.ParseLevel(config.GetString("log.level"))
	if err != nil {
		logLevel = log.InfoLevel
	}
	if verbose {
		logLevel = log.DebugLevel
	}

	var w io.Writer = os.Stderr
	f, err := os.OpenFile(config.GetString("log.file"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err == nil {
		w = f
	}
	InitWriter(w, logLevel)
}

// InitWriter sends log lines to w at level
func InitWriter(w io.Writer, level log.Level) {
	logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "chat",
	})
	logger.SetLevel(level)
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}

// Scope logs with a fixed set of leading fields, such as the conversation or
// request a line belongs to. The zero value logs without extra fields.
type Scope struct {
	fields []interface{}
}

// With returns a scope that prefixes every line with keyvals
func With(keyvals ...interface{}) Scope {
	return Scope{}.With(keyvals...)
}

// With returns a copy of s with keyvals appended
func (s Scope) With(keyvals ...interface{}) Scope {
	fields := make([]interface{}, 0, len(s.fields)+len(keyvals))
	fields = append(fields, s.fields...)
	fields = append(fields, keyvals...)
	return Scope{fields: fields}
}

func (s Scope) args(args []interface{}) []interface{} {
	if len(s.fields) == 0 {
		return args
	}
	out := make([]interface{}, 0, len(s.fields)+len(args))
	out = append(out, s.fields...)
	return append(out, args...)
}

// Debug logs a debug message with the scope's fields
func (s Scope) Debug(msg string, args ...interface{}) { Debug(msg, s.args(args)...) }

// Info logs an info message with the scope's fields
func (s Scope) Info(msg string, args ...interface{}) { Info(msg, s.args(args)...) }

// Warn logs a warning with the scope's fields
func (s Scope) Warn(msg string, args ...interface{}) { Warn(msg, s.args(args)...) }

// Error logs an error with the scope's fields
func (s Scope) Error(msg string, args ...interface{}) { Error(msg, s.args(args)...) }

// GetLogger returns the logger instance
func GetLogger() *log.Logger {
	return logger
}
