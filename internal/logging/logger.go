// Package logging provides the leveled operator log shared by the panel and the executor.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes "<RFC3339> <LEVEL> <component>: message" lines.
type Logger struct {
	mu        sync.RWMutex
	level     Level
	component string
	out       *log.Logger
	now       func() time.Time
}

func New(w io.Writer, component string, level Level) *Logger {
	return &Logger{
		level:     level,
		component: component,
		out:       log.New(w, "", 0),
		now:       time.Now,
	}
}

// Discard returns a logger that drops everything; used where a logger is optional.
func Discard() *Logger {
	return New(io.Discard, "", LevelError+1)
}

// With returns a logger for a sub-component sharing the same writer and level.
func (l *Logger) With(component string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	name := component
	if l.component != "" {
		name = l.component + "." + component
	}
	return &Logger{level: l.level, component: name, out: l.out, now: l.now}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

func (l *Logger) logf(level Level, format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.RLock()
	min := l.level
	l.mu.RUnlock()
	if level < min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		l.out.Printf("%s %s %s: %s", l.now().Format(time.RFC3339), level, l.component, msg)
		return
	}
	l.out.Printf("%s %s %s", l.now().Format(time.RFC3339), level, msg)
}
