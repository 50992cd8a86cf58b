package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/config"
	"github.com/mrz1836/warden/internal/credential"
	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/siwe"
)

const (
	testPassword  = "correct horse battery"
	testPhrase    = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testRecipient = "1111111111111111111111111111111111111111"
)

// cliEnv is an isolated home with a local issuer and a credential store
// shared across command runs.
type cliEnv struct {
	home   string
	issuer *httptest.Server
	creds  *credential.MemoryStore
}

// setupCLI writes a fast config under a temp home and points the issuer at
// an in-process server. edit may adjust the config before it is saved.
func setupCLI(t *testing.T, edit func(*config.Config)) *cliEnv {
	t.Helper()
	env := &cliEnv{home: t.TempDir(), creds: credential.NewMemoryStore()}

	env.issuer = httptest.NewServer(siwe.NewHandler(
		siwe.NewMemoryIssuer(siwe.MemoryIssuerOptions{Domain: config.DefaultDomain}), nil))
	t.Cleanup(env.issuer.Close)

	c := config.Defaults()
	c.Home = env.home
	c.Security.Argon2Time = 1
	c.Security.Argon2MemoryKiB = 64
	c.Security.Argon2Threads = 1
	c.Security.CredentialStore = config.CredentialMemory
	c.Auth.IssuerURL = env.issuer.URL
	c.Network.BroadcastURL = ""
	c.Logging.Level = "off"
	c.Logging.File = filepath.Join(env.home, "warden.log")
	if edit != nil {
		edit(c)
	}
	require.NoError(t, config.Save(c, config.Path(env.home)))

	t.Setenv(config.EnvHome, env.home)

	origCtx := newCommandContextFn
	t.Cleanup(func() { newCommandContextFn = origCtx })
	newCommandContextFn = func(c *config.Config, l *config.Logger, f *output.Formatter) (*CommandContext, error) {
		cc, err := origCtx(c, l, f)
		if err != nil {
			return nil, err
		}
		cc.Credentials = env.creds
		return cc, nil
	}

	withMockPrompts(t, []byte(testPassword), true)
	return env
}

// run executes one command line and returns what it printed to stdout.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--home", e.home))
	err := execute(root, io.Discard)
	return stdout.String(), err
}

// runJSON executes args with -o json and decodes the output into v.
func (e *cliEnv) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := e.run(t, append(args, "-o", "json")...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

// importWallet imports testPhrase on curve and returns its address.
func (e *cliEnv) importWallet(t *testing.T, curve string, extra ...string) string {
	t.Helper()
	var res map[string]string
	e.runJSON(t, &res, append([]string{"wallet", "import", "--curve", curve}, extra...)...)
	require.NotEmpty(t, res["address"])
	return res["address"]
}

// withMockPrompts replaces prompt functions for testing and restores on cleanup.
func withMockPrompts(t *testing.T, password []byte, confirm bool) {
	t.Helper()
	origPW := promptPasswordFn
	origNewPW := promptNewPasswordFn
	origPhrase := promptPhraseFn
	origConfirm := promptConfirmFn
	t.Cleanup(func() {
		promptPasswordFn = origPW
		promptNewPasswordFn = origNewPW
		promptPhraseFn = origPhrase
		promptConfirmFn = origConfirm
	})
	promptPasswordFn = func(_ string) ([]byte, error) {
		return bytes.Clone(password), nil
	}
	promptNewPasswordFn = func() ([]byte, error) {
		return bytes.Clone(password), nil
	}
	promptPhraseFn = func() (string, error) {
		return testPhrase, nil
	}
	promptConfirmFn = func(_ string) bool { return confirm }
}

// broadcastServer accepts every submission.
func broadcastServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"accepted": true})
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}
