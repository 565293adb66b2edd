// Package logging is a small leveled logger shared by the freyjadoc packages.
//
// Output goes through Callback, which writes to the standard library logger
// unless a caller redirects it.
package logging

import (
	"log"
	"strings"
	"sync/atomic"
)

type Level uint32

const (
	// LevelNone disables all logging
	LevelNone Level = iota
	// LevelError enables only error logging.
	LevelError
	// LevelWarn enables warn and error logging.
	LevelWarn
	// LevelInfo enables info, warn, and error logging.
	LevelInfo
	// LevelDebug enables debug, info, warn, and error logging.
	LevelDebug
	// LevelTrace enables everything.
	LevelTrace
)

var levelPrefixes = []string{
	"freyjadoc: [NON] ",
	"freyjadoc: [ERR] ",
	"freyjadoc: [WRN] ",
	"freyjadoc: [INF] ",
	"freyjadoc: [DBG] ",
	"freyjadoc: [TRC] ",
}

var levelNames = []string{"none", "error", "warn", "info", "debug", "trace"}

var currentLevel = uint32(LevelWarn)

// SetLevel sets the logging level.
func SetLevel(level Level) {
	atomic.StoreUint32(&currentLevel, uint32(level))
}

func GetLevel() Level {
	return Level(atomic.LoadUint32(&currentLevel))
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel maps a config string to a Level. Unknown names yield LevelInfo
// and false.
func ParseLevel(s string) (Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// Callback receives every emitted message. Set it to redirect logging
// elsewhere; the default writes to log.Printf.
var Callback = func(level Level, format string, args ...any) {
	log.Printf(levelPrefixes[level]+format, args...)
}

func logAt(level Level, format string, args ...any) {
	if GetLevel() >= level {
		Callback(level, format, args...)
	}
}

func Errorf(format string, args ...any) { logAt(LevelError, format, args...) }
func Warnf(format string, args ...any)  { logAt(LevelWarn, format, args...) }
func Infof(format string, args ...any)  { logAt(LevelInfo, format, args...) }
func Debugf(format string, args ...any) { logAt(LevelDebug, format, args...) }
func Tracef(format string, args ...any) { logAt(LevelTrace, format, args...) }
