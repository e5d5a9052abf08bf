// SPDX-License-Identifier: MIT
/*
Package log is a small leveled logger over the standard library logger. The
level is global and atomic so the audio callback can check it without locks.

While the exercise screen is up the terminal belongs to the UI, so the
trainer points output at a file with SetOutput.
*/
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel is the severity of a message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

func (l LogLevel) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// ParseLevel converts a case-insensitive level name. Unknown names yield
// LevelInfo and false.
func ParseLevel(name string) (LogLevel, bool) {
	name = strings.ToUpper(name)
	if name == "WARNING" {
		return LevelWarn, true
	}
	for l, n := range levelNames {
		if n == name {
			return LogLevel(l), true
		}
	}
	return LevelInfo, false
}

var (
	currentLevel atomic.Uint32
	logger       = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)
)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global level.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// Enabled reports whether messages at level are written. Hot paths check it
// before building expensive arguments.
func Enabled(level LogLevel) bool {
	return level >= LogLevel(currentLevel.Load())
}

// SetOutput redirects every subsequent message to w.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func output(level LogLevel, format string, v []any) {
	if !Enabled(level) {
		return
	}
	logger.Printf("[%-5s] %s", level, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) { output(LevelDebug, format, v) }
func Infof(format string, v ...any)  { output(LevelInfo, format, v) }
func Warnf(format string, v ...any)  { output(LevelWarn, format, v) }
func Errorf(format string, v ...any) { output(LevelError, format, v) }

// Fatalf writes regardless of level and exits with status 1.
func Fatalf(format string, v ...any) {
	logger.Fatalf("[%-5s] %s", LevelFatal, fmt.Sprintf(format, v...))
}
