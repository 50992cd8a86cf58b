//go:build integration

// End-to-end tests against the built binary.
//
// Run with: go test -tags=integration ./cmd/warden/...
package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/config"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

//nolint:gochecknoglobals // TestMain requires globals for shared test state
var (
	testHome     string
	wardenBinary string
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "warden-integration-*")
	if err != nil {
		panic("failed to create temp dir: " + err.Error())
	}
	testHome = filepath.Join(dir, "home")
	wardenBinary = filepath.Join(dir, "warden-test")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	//nolint:gosec // G204: binary path is controlled by the test
	build := exec.CommandContext(ctx, "go", "build", "-o", wardenBinary, ".")
	output, err := build.CombinedOutput()
	cancel()
	if err != nil {
		panic("failed to build warden binary: " + err.Error() + "\nOutput: " + string(output))
	}

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// runWarden executes the binary against the shared home.
func runWarden(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	//nolint:gosec // G204: binary path is controlled by the test
	cmd := exec.CommandContext(ctx, wardenBinary, append([]string{"--home", testHome}, args...)...)
	cmd.Env = append(os.Environ(), config.EnvCredentialStore+"="+config.CredentialMemory)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		exitCode = exitErr.ExitCode()
	case err != nil:
		exitCode = -1
	}
	return outBuf.String(), errBuf.String(), exitCode
}

func TestQuickstartWorkflow(t *testing.T) {
	t.Run("config init", func(t *testing.T) {
		_, stderr, code := runWarden(t, "config", "init")
		require.Zero(t, code, stderr)
		assert.FileExists(t, filepath.Join(testHome, "config.yaml"))
	})

	t.Run("wallet list empty", func(t *testing.T) {
		// Piped stdout resolves auto to JSON.
		stdout, stderr, code := runWarden(t, "wallet", "list")
		require.Zero(t, code, stderr)
		var list []any
		require.NoError(t, json.Unmarshal([]byte(stdout), &list), stdout)
		assert.Empty(t, list)
	})

	t.Run("config show", func(t *testing.T) {
		stdout, stderr, code := runWarden(t, "config", "show")
		require.Zero(t, code, stderr)
		assert.Contains(t, stdout, `"network"`)
		assert.Contains(t, stdout, `"security"`)
	})

	t.Run("version json", func(t *testing.T) {
		stdout, stderr, code := runWarden(t, "version", "-o", "json")
		require.Zero(t, code, stderr)
		var v map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &v), stdout)
		assert.Contains(t, v, "version")
	})

	t.Run("help", func(t *testing.T) {
		for _, line := range []string{"--help", "wallet --help", "tx --help", "auth --help", "issuer serve --help"} {
			stdout, _, code := runWarden(t, strings.Fields(line)...)
			assert.Zero(t, code, line)
			assert.Contains(t, stdout, "Usage:", line)
		}
	})

	t.Run("completion", func(t *testing.T) {
		for _, shell := range []string{"bash", "zsh", "fish"} {
			stdout, _, code := runWarden(t, "completion", shell)
			assert.Zero(t, code, shell)
			assert.Greater(t, len(stdout), 100, shell)
		}
	})
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, wardenerr.ExitSuccess},
		{"version", []string{"version"}, wardenerr.ExitSuccess},
		{"unknown command", []string{"unknowncmd"}, wardenerr.ExitGeneral},
		{"wallet not found", []string{"wallet", "show", "nonexistent"}, wardenerr.ExitNotFound},
		{"bad curve", []string{"wallet", "create", "--curve", "rsa"}, wardenerr.ExitInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := runWarden(t, tt.args...)
			assert.Equal(t, tt.want, code, stderr)
		})
	}
}

func TestErrorOutputIsJSON(t *testing.T) {
	_, stderr, code := runWarden(t, "wallet", "show", "nonexistent", "-o", "json")
	assert.Equal(t, wardenerr.ExitNotFound, code)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(stderr), &body), stderr)
	assert.Contains(t, stderr, "WALLET_NOT_FOUND")
}
