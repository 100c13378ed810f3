// Package logging is the leveled structured logger shared by every sdrwave
// component. Records carry key/value fields and render as text or JSON; the
// CLI installs the process default from the log section of the config.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// Level is a record severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = [...]string{Debug: "DEBUG", Info: "INFO", Warn: "WARN", Error: "ERROR"}

func (l Level) String() string {
	if l < Debug || l > Error {
		return "UNKNOWN"
	}
	return levelNames[l]
}

var levelAliases = map[string]Level{
	"":        Info,
	"debug":   Debug,
	"info":    Info,
	"warn":    Warn,
	"warning": Warn,
	"error":   Error,
}

// ParseLevel accepts debug, info, warn (or warning) and error. Empty means
// info.
func ParseLevel(s string) (Level, error) {
	if l, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return Debug, fmt.Errorf("unsupported log level %q", s)
}

// Format selects the record encoding.
type Format int

const (
	Text Format = iota
	JSON
)

func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case JSON:
		return "json"
	}
	return "unknown"
}

// ParseFormat accepts text or json. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return Text, nil
	case "json":
		return JSON, nil
	}
	return Text, fmt.Errorf("unsupported log format %q", s)
}

// Field is one key/value pair attached to a record. Fields with an empty key
// are dropped.
type Field struct {
	Key   string
	Value any
}

// Logger is the logging surface components depend on.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger
)

// Default returns the process-wide logger, a Nop until SetDefault runs.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultLogger == nil {
		return Nop()
	}
	return defaultLogger
}

// SetDefault installs l as the process-wide logger. A nil l is ignored.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}
func (nopLogger) With(...Field) Logger   { return nopLogger{} }

// Nop returns a logger that drops every record; tests use it to keep output
// quiet.
func Nop() Logger { return nopLogger{} }

// Configure builds a logger from the textual level and format found in the
// config file and CLI flags.
func Configure(level, format string, out io.Writer) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return New(lvl, f, out), nil
}

// Subsystem tags l with a subsystem field ("stream", "sweep", "transmit").
// A nil l falls back to Default.
func Subsystem(l Logger, name string) Logger {
	if l == nil {
		l = Default()
	}
	return l.With(Field{Key: "subsystem", Value: name})
}

type recordLogger struct {
	min    Level
	format Format
	fields []Field
	out    *log.Logger
}

// New returns a logger writing records at or above level to out.
func New(level Level, format Format, out io.Writer) Logger {
	return &recordLogger{min: level, format: format, out: log.New(out, "", log.LstdFlags)}
}

func (l *recordLogger) With(fields ...Field) Logger {
	child := *l
	child.fields = append(append([]Field(nil), l.fields...), fields...)
	return &child
}

func (l *recordLogger) Debug(msg string, fields ...Field) { l.emit(Debug, msg, fields) }
func (l *recordLogger) Info(msg string, fields ...Field)  { l.emit(Info, msg, fields) }
func (l *recordLogger) Warn(msg string, fields ...Field)  { l.emit(Warn, msg, fields) }
func (l *recordLogger) Error(msg string, fields ...Field) { l.emit(Error, msg, fields) }

func (l *recordLogger) emit(level Level, msg string, fields []Field) {
	if level < l.min {
		return
	}
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(append(all, l.fields...), fields...)
	if l.format == JSON {
		l.emitJSON(level, msg, all)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for _, f := range all {
		if f.Key != "" {
			fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
		}
	}
	l.out.Print(b.String())
}

func (l *recordLogger) emitJSON(level Level, msg string, fields []Field) {
	record := make(map[string]any, len(fields)+3)
	for _, f := range fields {
		if f.Key != "" {
			record[f.Key] = f.Value
		}
	}
	record["time"] = time.Now().Format(time.RFC3339Nano)
	record["level"] = level.String()
	record["msg"] = msg

	data, err := json.Marshal(record)
	if err != nil {
		l.out.Printf("[ERROR] encode log record: %v", err)
		return
	}
	l.out.Print(string(data))
}
