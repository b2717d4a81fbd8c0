// Package logger wraps logrus with the configuration used across the backend.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig selects level, format and destination.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
	Output string // "stdout", "stderr" or a file path
}

// Logger is a logrus logger tagged with a component name.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a logger from cfg. Unknown levels fall back to info.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	base.SetOutput(openOutput(cfg.Output))
	return &Logger{Logger: base}
}

// NewDefault returns a JSON info-level logger on stdout tagged with component.
func NewDefault(component string) *Logger {
	return New(LoggingConfig{Level: "info", Format: "json"}).Named(component)
}

// Named returns a logger that stamps every entry with the component field.
// The underlying output and level are shared with the parent.
func (l *Logger) Named(component string) *Logger {
	child := &logrus.Logger{
		Out:          l.Out,
		Formatter:    l.Formatter,
		ReportCaller: l.ReportCaller,
		Level:        l.GetLevel(),
		ExitFunc:     l.ExitFunc,
		Hooks:        make(logrus.LevelHooks),
	}
	for level, hooks := range l.Hooks {
		for _, h := range hooks {
			if _, ok := h.(componentHook); ok {
				continue
			}
			child.Hooks[level] = append(child.Hooks[level], h)
		}
	}
	child.AddHook(componentHook{name: component})
	return &Logger{Logger: child, component: component}
}

// Component returns the component name, empty for the root logger.
func (l *Logger) Component() string {
	return l.component
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	l := New(LoggingConfig{Level: "panic"})
	l.SetOutput(io.Discard)
	return l
}

func openOutput(output string) io.Writer {
	switch strings.TrimSpace(output) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stdout
		}
		return f
	}
}

type componentHook struct {
	name string
}

func (h componentHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h componentHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["component"]; !ok {
		entry.Data["component"] = h.name
	}
	return nil
}
