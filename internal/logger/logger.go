package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[Level]string{
	DEBUG: "\033[36m",
	INFO:  "\033[32m",
	WARN:  "\033[33m",
	ERROR: "\033[31m",
	FATAL: "\033[35m",
}

const (
	colorReset      = "\033[0m"
	timestampFormat = "2006-01-02 15:04:05.000"
)

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// Fields represents structured logging fields
type Fields map[string]interface{}

// Logger writes leveled, component-tagged records as text or JSON.
// Child loggers created with WithComponent or With share the parent's writer
// and lock.
type Logger struct {
	mu        *sync.Mutex
	level     Level
	output    io.Writer
	component string
	json      bool
	color     bool
	fields    Fields
	exit      func(int)
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger
func Init(level, format, component string) {
	once.Do(func() {
		defaultLogger = New(level, format, component)
	})
}

// New creates a logger writing to stdout. format is "text" or "json".
func New(levelStr, format, component string) *Logger {
	isJSON := strings.EqualFold(format, "json")
	return &Logger{
		mu:        &sync.Mutex{},
		level:     ParseLevel(levelStr),
		output:    os.Stdout,
		component: component,
		json:      isJSON,
		color:     !isJSON && os.Getenv("NO_COLOR") == "",
		exit:      os.Exit,
	}
}

// ForComponent returns a child of the default logger, or a fresh info-level
// text logger when no default has been initialized.
func ForComponent(component string) *Logger {
	if l := GetDefault(); l != nil {
		return l.WithComponent(component)
	}
	return New("info", "text", component)
}

// SetOutput redirects the logger and disables color codes
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.color = false
}

// Level returns the minimum level that is written
func (l *Logger) Level() Level {
	return l.level
}

// WithComponent creates a new logger with a specific component name
func (l *Logger) WithComponent(component string) *Logger {
	child := l.clone()
	child.component = component
	return child
}

// With returns a child logger that adds fields to every record
func (l *Logger) With(fields Fields) *Logger {
	child := l.clone()
	child.fields = mergeFields(l.fields, fields)
	return child
}

func (l *Logger) clone() *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *l
	return &c
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(DEBUG, msg, fields)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(INFO, msg, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(WARN, msg, fields)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(ERROR, msg, fields)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...Fields) {
	l.log(FATAL, msg, fields)
	l.exit(1)
}

func (l *Logger) log(level Level, msg string, extra []Fields) {
	if level < l.level {
		return
	}

	fields := mergeFields(append([]Fields{l.fields}, extra...)...)
	if level >= ERROR {
		if _, file, line, ok := runtime.Caller(2); ok {
			fields["caller"] = fmt.Sprintf("%s:%d", file, line)
		}
	}

	timestamp := time.Now().Format(timestampFormat)

	var line string
	if l.json {
		line = l.formatJSON(timestamp, level, msg, fields)
	} else {
		line = l.formatText(timestamp, level, msg, fields)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.output, line)
}

// formatText renders: [TIMESTAMP] LEVEL [COMPONENT] message key=value ...
func (l *Logger) formatText(timestamp string, level Level, msg string, fields Fields) string {
	var b strings.Builder

	if l.color {
		b.WriteString(levelColors[level])
	}
	fmt.Fprintf(&b, "[%s] %-5s", timestamp, level)
	if l.color {
		b.WriteString(colorReset)
	}

	if l.component != "" {
		fmt.Fprintf(&b, " [%s]", l.component)
	}
	b.WriteString(" ")
	b.WriteString(msg)

	for _, k := range sortedKeys(fields) {
		fmt.Fprintf(&b, " %s=%v", k, textValue(fields[k]))
	}

	b.WriteString("\n")
	return b.String()
}

func (l *Logger) formatJSON(timestamp string, level Level, msg string, fields Fields) string {
	record := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		record[k] = jsonValue(v)
	}
	record["timestamp"] = timestamp
	record["level"] = level.String()
	record["message"] = msg
	if l.component != "" {
		record["component"] = l.component
	}

	data, err := json.Marshal(record)
	if err != nil {
		// Only reachable with exotic field values; keep the message
		data, _ = json.Marshal(map[string]string{
			"timestamp": timestamp,
			"level":     level.String(),
			"message":   msg,
			"log_error": err.Error(),
		})
	}
	return string(data) + "\n"
}

func textValue(v interface{}) interface{} {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

func jsonValue(v interface{}) interface{} {
	switch val := v.(type) {
	case error:
		return val.Error()
	case time.Duration:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return val
	}
}

// ParseLevel converts a level name to a Level, defaulting to INFO
func ParseLevel(levelStr string) Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// mergeFields combines multiple Fields maps; later maps win
func mergeFields(fields ...Fields) Fields {
	result := Fields{}
	for _, f := range fields {
		for k, v := range f {
			result[k] = v
		}
	}
	return result
}

func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Default logger convenience functions
func Debug(msg string, fields ...Fields) {
	if defaultLogger != nil {
		defaultLogger.Debug(msg, fields...)
	} else {
		log.Printf("[DEBUG] %s", msg)
	}
}

func Info(msg string, fields ...Fields) {
	if defaultLogger != nil {
		defaultLogger.Info(msg, fields...)
	} else {
		log.Printf("[INFO] %s", msg)
	}
}

func Warn(msg string, fields ...Fields) {
	if defaultLogger != nil {
		defaultLogger.Warn(msg, fields...)
	} else {
		log.Printf("[WARN] %s", msg)
	}
}

func Error(msg string, fields ...Fields) {
	if defaultLogger != nil {
		defaultLogger.Error(msg, fields...)
	} else {
		log.Printf("[ERROR] %s", msg)
	}
}

func Fatal(msg string, fields ...Fields) {
	if defaultLogger != nil {
		defaultLogger.Fatal(msg, fields...)
	} else {
		log.Fatalf("[FATAL] %s", msg)
	}
}

// GetDefault returns the default logger
func GetDefault() *Logger {
	return defaultLogger
}
