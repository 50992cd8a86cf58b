package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/mrz1836/warden/internal/fileutil"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

// ParseLogLevel parses a log level string. Unknown values mean error.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

// LogWriter is the logging surface every warden package accepts. *Logger
// satisfies it.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

var _ LogWriter = (*Logger)(nil)

const redacted = "[REDACTED]"

// Long hex runs are private keys, seeds or signatures; addresses (40 hex
// digits) and short ids stay readable.
//
//nolint:gochecknoglobals // compiled once
var (
	secretHex   = regexp.MustCompile(`(?i)\b(0x)?[0-9a-f]{64,}\b`)
	bearerToken = regexp.MustCompile(`(?i)(bearer\s+)\S+`)
)

// Redact masks material that must never reach a log line: long hex strings
// and bearer tokens. Newlines are folded so one call is one line.
func Redact(msg string) string {
	msg = secretHex.ReplaceAllString(msg, redacted)
	msg = bearerToken.ReplaceAllString(msg, "${1}"+redacted)
	return strings.ReplaceAll(msg, "\n", " ")
}

// Logger appends timestamped, redacted lines to a file.
type Logger struct {
	clock clock.Clock

	mu    sync.Mutex
	level LogLevel
	out   io.WriteCloser
	path  string
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithLogClock sets the clock line timestamps come from.
func WithLogClock(c clock.Clock) LoggerOption {
	return func(l *Logger) { l.clock = c }
}

// NewLogger creates a logger writing to filePath. With LogLevelOff or an
// empty path no file is opened.
func NewLogger(level LogLevel, filePath string, opts ...LoggerOption) (*Logger, error) {
	l := &Logger{level: level, clock: clock.NewDefaultClock()}
	for _, opt := range opts {
		opt(l)
	}
	if level == LogLevelOff || filePath == "" {
		return l, nil
	}

	filePath = ExpandPath(filePath)
	if err := fileutil.EnsurePrivateDir(filepath.Dir(filePath)); err != nil {
		return nil, err
	}
	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	l.out = f
	l.path = filePath
	return l, nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{level: LogLevelOff, clock: clock.NewDefaultClock()}
}

// Path returns the file being written, or "".
func (l *Logger) Path() string {
	return l.path
}

// Close closes the log file. Later lines are dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.write(LogLevelDebug, format, args)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.write(LogLevelError, format, args)
}

func (l *Logger) write(level LogLevel, format string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil || level > l.level {
		return
	}
	line := fmt.Sprintf("%s [%s] %s\n",
		l.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		strings.ToUpper(level.String()),
		Redact(fmt.Sprintf(format, args...)))
	_, _ = io.WriteString(l.out, line)
}
