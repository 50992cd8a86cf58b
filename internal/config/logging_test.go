package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected config.LogLevel
	}{
		{"off", config.LogLevelOff},
		{"OFF", config.LogLevelOff},
		{"none", config.LogLevelOff},
		{"error", config.LogLevelError},
		{"debug", config.LogLevelDebug},
		{"  DEBUG  ", config.LogLevelDebug},
		{"warn", config.LogLevelError},
		{"", config.LogLevelError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, config.ParseLogLevel(tt.input), tt.input)
	}
}

func TestLogLevel_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "off", config.LogLevelOff.String())
	assert.Equal(t, "error", config.LogLevelError.String())
	assert.Equal(t, "debug", config.LogLevelDebug.String())
	assert.Equal(t, "error", config.LogLevel(99).String())
}

func readLogFile(t *testing.T, path string) string {
	t.Helper()
	// #nosec G304 -- test file path
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestNewLogger_WritesLines(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "logs", "warden.log")

	logger, err := config.NewLogger(config.LogLevelDebug, logPath)
	require.NoError(t, err)
	assert.Equal(t, logPath, logger.Path())

	logger.Debug("session: unlocked %s", "0xabc")
	logger.Error("auth: flow failed: %s", "NONCE_REJECTED")
	logger.Debug("multi\nline")
	require.NoError(t, logger.Close())

	content := readLogFile(t, logPath)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "[DEBUG] session: unlocked 0xabc")
	assert.Contains(t, lines[1], "[ERROR] auth: flow failed: NONCE_REJECTED")
	assert.Contains(t, lines[2], "multi line")

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLogger_LevelFiltering(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "warden.log")

	logger, err := config.NewLogger(config.LogLevelError, logPath)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Error("shown")

	logger.SetLevel(config.LogLevelDebug)
	assert.Equal(t, config.LogLevelDebug, logger.Level())
	logger.Debug("now visible")

	logger.SetLevel(config.LogLevelOff)
	logger.Error("silenced")
	require.NoError(t, logger.Close())

	content := readLogFile(t, logPath)
	assert.NotContains(t, content, "hidden")
	assert.Contains(t, content, "shown")
	assert.Contains(t, content, "now visible")
	assert.NotContains(t, content, "silenced")
}

func TestNewLogger_NoFile(t *testing.T) {
	t.Parallel()
	logger, err := config.NewLogger(config.LogLevelDebug, "")
	require.NoError(t, err)
	logger.Debug("goes nowhere")
	assert.Empty(t, logger.Path())
	require.NoError(t, logger.Close())

	logger, err = config.NewLogger(config.LogLevelOff, filepath.Join(t.TempDir(), "never.log"))
	require.NoError(t, err)
	assert.Empty(t, logger.Path())
}

func TestNewLogger_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := config.NewLogger(config.LogLevelDebug, "/proc/nonexistent/test.log")
	assert.Error(t, err)
}

func TestNullLogger(t *testing.T) {
	t.Parallel()
	logger := config.NullLogger()
	assert.Equal(t, config.LogLevelOff, logger.Level())
	logger.Debug("test debug")
	logger.Error("test error")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}

func TestRedact(t *testing.T) {
	t.Parallel()
	key := strings.Repeat("ab", 32)
	tests := []struct {
		name, in, want string
	}{
		{"address kept", "unlocked 0x9858EfFD232B4033E47d90003D41EC34EcaEda94", "unlocked 0x9858EfFD232B4033E47d90003D41EC34EcaEda94"},
		{"private key", "key=" + key, "key=[REDACTED]"},
		{"prefixed key", "sig 0x" + key + "cd done", "sig [REDACTED] done"},
		{"bearer", "Authorization: Bearer abc.def.ghi", "Authorization: Bearer [REDACTED]"},
		{"newlines", "a\nb", "a b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, config.Redact(tt.in), tt.name)
	}
}

func TestLogger_RedactsAndUsesClock(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "warden.log")
	at := time.Date(2026, time.July, 8, 9, 10, 11, 120*int(time.Millisecond), time.UTC)

	logger, err := config.NewLogger(config.LogLevelDebug, logPath, config.WithLogClock(clock.NewTestClock(at)))
	require.NoError(t, err)
	var w config.LogWriter = logger
	w.Debug("transport: authorization %s", "Bearer tok123")
	w.Error("vault: sealed %s", strings.Repeat("0f", 40))
	require.NoError(t, logger.Close())
	w.Error("after close")

	lines := strings.Split(strings.TrimSpace(readLogFile(t, logPath)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2026-07-08T09:10:11.120Z [DEBUG] transport: authorization Bearer [REDACTED]", lines[0])
	assert.Equal(t, "2026-07-08T09:10:11.120Z [ERROR] vault: sealed [REDACTED]", lines[1])
}
