package cli

import (
	"context"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/mrz1836/warden/internal/broadcast"
	"github.com/mrz1836/warden/internal/config"
	"github.com/mrz1836/warden/internal/credential"
	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/registry"
	walletsvc "github.com/mrz1836/warden/internal/service/wallet"
	"github.com/mrz1836/warden/internal/session"
	"github.com/mrz1836/warden/internal/siwe"
	"github.com/mrz1836/warden/internal/transport"
	"github.com/mrz1836/warden/internal/tx"
	"github.com/mrz1836/warden/internal/vault"
	"github.com/mrz1836/warden/internal/version"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// newCommandContextFn builds the context for each command. Tests replace it.
//
//nolint:gochecknoglobals // test seam
var newCommandContextFn = newCommandContext

// CommandContext holds the dependencies commands run against.
type CommandContext struct {
	Config      *config.Config
	Logger      *config.Logger
	Formatter   *output.Formatter
	Clock       clock.Clock
	Registry    registry.Store
	Vault       *vault.Vault
	Sessions    *session.Manager
	Wallets     *walletsvc.Service
	Credentials credential.Store
	Issuer      siwe.Issuer
	Broadcaster broadcast.Broadcaster

	auth *siwe.Authenticator
}

// newCommandContext wires the stack described by cfg.
func newCommandContext(cfg *config.Config, logger *config.Logger, formatter *output.Formatter) (*CommandContext, error) {
	c := &CommandContext{
		Config:    cfg,
		Logger:    logger,
		Formatter: formatter,
		Clock:     clock.NewDefaultClock(),
		Vault:     vault.New(vault.WithParams(cfg.VaultParams())),
	}
	opts := &transport.ClientOptions{Logger: logger, UserAgent: version.UserAgent()}

	creds, err := newCredentialStore(cfg)
	switch {
	case wardenerr.Is(err, credential.ErrKeyringUnavailable):
		// Commands that never log in still run; the login does not persist.
		logger.Error("credential: keyring unavailable, using memory store")
		creds = credential.NewMemoryStore()
	case err != nil:
		return nil, err
	}
	c.Credentials = creds

	switch cfg.Registry.Backend {
	case config.RegistryRemote:
		remote, err := registry.NewRemoteStore(cfg.Registry.URL, registry.TokenFunc(c.registryToken), opts)
		if err != nil {
			return nil, err
		}
		c.Registry = remote
	default:
		c.Registry = registry.NewFileStore(cfg.HomeDir(), logger)
	}

	if cfg.Auth.IssuerURL != "" {
		issuer, err := siwe.NewHTTPIssuer(cfg.Auth.IssuerURL, opts)
		if err != nil {
			return nil, err
		}
		c.Issuer = issuer
	}
	if cfg.Network.BroadcastURL != "" {
		b, err := broadcast.NewClient(cfg.Network.BroadcastURL, opts)
		if err != nil {
			return nil, err
		}
		c.Broadcaster = b
	}

	c.build()
	return c, nil
}

// build derives the session manager and wallet service from the stores.
func (c *CommandContext) build() {
	c.Sessions = session.NewManager(c.Registry, c.Vault, &session.Options{
		Clock:    c.Clock,
		AutoLock: c.Config.AutoLock(),
		Logger:   c.Logger,
	})
	svcCfg := &walletsvc.Config{
		Registry: c.Registry,
		Vault:    c.Vault,
		Sessions: c.Sessions,
		Signer:   tx.NewSigner(c.Clock, c.Logger),
		Clock:    c.Clock,
		Logger:   c.Logger,
	}
	if c.Broadcaster != nil {
		svcCfg.Broadcaster = c.Broadcaster
	}
	c.Wallets = walletsvc.NewService(svcCfg)
}

// Authenticator returns the login flow for this command.
func (c *CommandContext) Authenticator() (*siwe.Authenticator, error) {
	if c.auth != nil {
		return c.auth, nil
	}
	if c.Issuer == nil {
		return nil, wardenerr.WithSuggestion(wardenerr.ErrConfigInvalid, "set auth.issuer_url or WARDEN_ISSUER_URL")
	}
	a := c.Config.Auth
	c.auth = siwe.NewAuthenticator(c.Issuer, c.Credentials, siwe.Config{
		Domain:    a.Domain,
		URI:       a.URI,
		Statement: a.Statement,
		ChainID:   a.SignerChainID,
		TTL:       c.Config.ChallengeTTL(),
	}, siwe.Options{Clock: c.Clock, Logger: c.Logger})
	return c.auth, nil
}

// registryToken authorizes remote registry calls with the login credential.
func (c *CommandContext) registryToken(ctx context.Context) (string, error) {
	cred, err := c.Credentials.Load(ctx)
	if err != nil || !cred.Valid(c.Clock.Now()) {
		return "", wardenerr.WithSuggestion(wardenerr.ErrNotAuthenticated,
			"the remote registry needs a login; run: warden auth login")
	}
	return cred.Token, nil
}

func newCredentialStore(cfg *config.Config) (credential.Store, error) {
	if cfg.Security.CredentialStore == config.CredentialMemory {
		return credential.NewMemoryStore(), nil
	}
	return credential.NewFileStore(cfg.HomeDir(), nil)
}
