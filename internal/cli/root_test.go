package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/config"
	"github.com/mrz1836/warden/internal/output"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, wardenerr.ExitSuccess},
		{"plain error", errors.New("boom"), wardenerr.ExitGeneral},
		{"wrong password", wardenerr.ErrWrongPassword, wardenerr.ExitAuth},
		{"not found", wardenerr.ErrWalletNotFound, wardenerr.ExitNotFound},
		{"frozen", wardenerr.ErrPermission, wardenerr.ExitPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExecute_PrintsErrors(t *testing.T) {
	env := setupCLI(t, nil)

	var stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"wallet", "show", "missing", "--home", env.home, "-o", "json"})
	err := execute(root, &stderr)
	require.Error(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &body), stderr.String())
	assert.Contains(t, stderr.String(), "WALLET_NOT_FOUND")
}

func TestVersionCommand(t *testing.T) {
	env := setupCLI(t, nil)

	out, err := env.run(t, "version", "-o", "text")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "warden "), out)
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLI(t, nil)

	_, err := env.run(t, "config", "init")
	require.Error(t, err, "an existing file is kept without --force")

	_, err = env.run(t, "config", "init", "--force")
	require.NoError(t, err)
	loaded, err := config.Load(config.Path(env.home))
	require.NoError(t, err)
	assert.Equal(t, config.CredentialKeyring, loaded.Security.CredentialStore)

	out, err := env.run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.home, "config.yaml"), strings.TrimSpace(out))
}

func TestConfigShow_EnvironmentOverrides(t *testing.T) {
	env := setupCLI(t, nil)
	t.Setenv(config.EnvBroadcastURL, "https://broadcast.example")

	out, err := env.run(t, "config", "show", "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "broadcast_url: https://broadcast.example")
}

func TestInitGlobals_MissingConfigUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	t.Setenv(config.EnvCredentialStore, config.CredentialMemory)

	origCtx := newCommandContextFn
	t.Cleanup(func() { newCommandContextFn = origCtx })
	var seen *config.Config
	newCommandContextFn = func(c *config.Config, l *config.Logger, f *output.Formatter) (*CommandContext, error) {
		seen = c
		return origCtx(c, l, f)
	}

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"config", "path"})
	require.NoError(t, execute(root, &bytes.Buffer{}))

	require.NotNil(t, seen)
	assert.Equal(t, home, seen.Home)
	assert.Equal(t, filepath.Join(home, "warden.log"), seen.Logging.File)
	_, err := os.Stat(config.Path(home))
	assert.True(t, os.IsNotExist(err), "a missing config is not written implicitly")
}
