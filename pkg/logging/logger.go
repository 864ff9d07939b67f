package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) onto a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DebugLevel, nil
	case "", "INFO":
		return InfoLevel, nil
	case "WARN", "WARNING":
		return WarnLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Fields represents structured log fields
type Fields map[string]interface{}

// StructuredLogger writes one JSON object per line.
type StructuredLogger struct {
	mu      *sync.Mutex
	level   LogLevel
	output  io.Writer
	service string
	fields  Fields
	now     func() time.Time
}

// LogEntry is a single structured log line
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Service   string    `json:"service"`
	Message   string    `json:"message"`
	Fields    Fields    `json:"fields,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewStructuredLogger creates a logger writing to stdout
func NewStructuredLogger(service string, level LogLevel) *StructuredLogger {
	return &StructuredLogger{
		mu:      &sync.Mutex{},
		level:   level,
		output:  os.Stdout,
		service: service,
		now:     time.Now,
	}
}

// Discard returns a logger that drops everything.
func Discard() *StructuredLogger {
	l := NewStructuredLogger("", ErrorLevel+1)
	l.output = io.Discard
	return l
}

// SetOutput sets the output destination for logs
func (l *StructuredLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

func (l *StructuredLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// WithFields returns a child logger that adds fields to every entry.
// The child shares the parent's output and lock.
func (l *StructuredLogger) WithFields(fields Fields) *StructuredLogger {
	child := *l
	child.fields = merge(l.fields, fields)
	return &child
}

func (l *StructuredLogger) Debug(message string, fields Fields) {
	l.log(DebugLevel, message, fields, nil)
}

func (l *StructuredLogger) Info(message string, fields Fields) {
	l.log(InfoLevel, message, fields, nil)
}

func (l *StructuredLogger) Warn(message string, fields Fields) {
	l.log(WarnLevel, message, fields, nil)
}

func (l *StructuredLogger) Error(message string, fields Fields, err error) {
	l.log(ErrorLevel, message, fields, err)
}

func (l *StructuredLogger) log(level LogLevel, message string, fields Fields, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: l.now().UTC(),
		Level:     level.String(),
		Service:   l.service,
		Message:   message,
		Fields:    merge(l.fields, fields),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		fmt.Fprintf(os.Stderr, "%s [%s] %s: %v (log marshal failed: %v)\n",
			entry.Timestamp.Format(time.RFC3339), entry.Level, message, fields, marshalErr)
		return
	}
	l.output.Write(append(data, '\n'))
}

func merge(base, extra Fields) Fields {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(Fields, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
