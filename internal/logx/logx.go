// Package logx provides structured logging for the identedit CLI layer.
//
// Core packages never log on the success path: every error they return
// already carries full structured context (see internal/ierrors). logx
// exists for the CLI front-end: diagnostic tracing under --verbose, and
// one error line when a command fails.
package logx

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Level represents the severity of a log message.
type Level string

const (
	Debug Level = "debug"
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
)

var levelPriority = map[Level]int{
	Debug: 0,
	Info:  1,
	Warn:  2,
	Error: 3,
}

// Format selects the on-wire rendering of log entries.
type Format string

const (
	JSON  Format = "json"
	Human Format = "human"
)

// Config controls a Logger's output format, level, and destination.
type Config struct {
	Format Format
	Level  Level
	Output io.Writer // defaults to stderr
}

// Logger emits leveled, formatted log entries.
type Logger struct {
	config Config
	writer io.Writer
}

// New creates a Logger from Config, defaulting Output to stderr so stdout
// stays reserved for command JSON output.
func New(config Config) *Logger {
	writer := config.Output
	if writer == nil {
		writer = os.Stderr
	}
	return &Logger{config: config, writer: writer}
}

// Nop returns a Logger that discards everything, for callers that accept
// an optional *Logger and receive none.
func Nop() *Logger {
	return New(Config{Level: Error, Output: io.Discard})
}

type entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func (l *Logger) shouldLog(level Level) bool {
	return levelPriority[level] >= levelPriority[l.config.Level]
}

func (l *Logger) log(level Level, message string, fields map[string]any) {
	if l == nil || !l.shouldLog(level) {
		return
	}
	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Message:   message,
		Fields:    fields,
	}
	if l.config.Format == JSON {
		l.logJSON(e)
	} else {
		l.logHuman(e)
	}
}

func (l *Logger) logJSON(e entry) {
	data, err := json.Marshal(e)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logx: failed to marshal entry: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(l.writer, string(data))
}

func (l *Logger) logHuman(e entry) {
	_, _ = fmt.Fprintf(l.writer, "%s [%s] %s", e.Timestamp, e.Level, e.Message)
	if len(e.Fields) > 0 {
		_, _ = fmt.Fprintf(l.writer, " |")
		for k, v := range e.Fields {
			_, _ = fmt.Fprintf(l.writer, " %s=%v", k, v)
		}
	}
	_, _ = fmt.Fprintln(l.writer)
}

func (l *Logger) Debug(message string, fields map[string]any) { l.log(Debug, message, fields) }
func (l *Logger) Info(message string, fields map[string]any)  { l.log(Info, message, fields) }
func (l *Logger) Warn(message string, fields map[string]any)  { l.log(Warn, message, fields) }
func (l *Logger) Err(message string, fields map[string]any)   { l.log(Error, message, fields) }
