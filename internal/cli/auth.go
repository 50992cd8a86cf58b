package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/credential"
	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/siwe"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// issuerShutdownTimeout bounds the graceful stop of issuer serve.
const issuerShutdownTimeout = 5 * time.Second

// authStatus is the JSON view of auth status. The token is never included.
type authStatus struct {
	State           string    `json:"state"`
	Address         string    `json:"address,omitempty"`
	AccountID       string    `json:"account_id,omitempty"`
	LinkedAddresses []string  `json:"linked_addresses,omitempty"`
	ExpiresAt       time.Time `json:"expires_at,omitzero"`
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Log in to the account service with a wallet",
		Long: `Prove ownership of an ethsecp256k1 wallet to the configured issuer by
signing a one-time challenge, and keep the session credential it returns.`,
		GroupID: "auth",
	}
	cmd.AddCommand(newAuthLoginCmd(), newAuthLinkCmd(), newAuthLogoutCmd(), newAuthStatusCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var ref string
	var force bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in by signing a challenge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := cmdCtx.Authenticator()
			if err != nil {
				return err
			}
			ok, err := auth.Rehydrate(cmd.Context())
			if err != nil {
				return err
			}
			if ok {
				if !force {
					return wardenerr.WithSuggestion(wardenerr.ErrAlreadyAuthenticated,
						"run: warden auth logout, or pass --force")
				}
				if err := auth.Logout(cmd.Context()); err != nil {
					return err
				}
			}

			return withAuthSigner(cmd.Context(), ref, func(ctx context.Context, signer siwe.ExternalSigner) error {
				cred, err := auth.Login(ctx, signer)
				if err != nil {
					return err
				}
				return printCredential(siwe.StateAuthenticated, cred)
			})
		},
	}
	cmd.Flags().StringVarP(&ref, "wallet", "w", "", "wallet address or nickname (default: active wallet)")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing login")
	return cmd
}

func newAuthLinkCmd() *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link another wallet to the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := cmdCtx.Authenticator()
			if err != nil {
				return err
			}
			linker := siwe.NewLinker(auth)
			return withAuthSigner(cmd.Context(), ref, func(ctx context.Context, signer siwe.ExternalSigner) error {
				cred, err := linker.Link(ctx, signer)
				if err != nil {
					if errors.Is(err, wardenerr.ErrNotAuthenticated) {
						return wardenerr.WithSuggestion(err, "run: warden auth login")
					}
					return err
				}
				return printCredential(siwe.StateAuthenticated, cred)
			})
		},
	}
	cmd.Flags().StringVarP(&ref, "wallet", "w", "", "wallet address or nickname (default: active wallet)")
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := cmdCtx.Authenticator()
			if err != nil {
				return err
			}
			if err := auth.Logout(cmd.Context()); err != nil {
				return err
			}
			return output.FormatSuccess(formatter.Writer(), "logged out", formatter.Format())
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the login state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := cmdCtx.Authenticator()
			if err != nil {
				return err
			}
			if _, err := auth.Rehydrate(cmd.Context()); err != nil {
				return err
			}
			cred, _ := auth.Credential()
			return printCredential(auth.State(), cred)
		},
	}
}

// withAuthSigner unlocks the ethsecp256k1 wallet named by ref and runs fn
// with a signer for it. Ctrl-C cancels the flow.
func withAuthSigner(parent context.Context, ref string, fn func(context.Context, siwe.ExternalSigner) error) error {
	w, err := cmdCtx.Wallets.Resolve(parent, ref)
	if err != nil {
		return err
	}
	if w.Curve != keys.EthSecp256k1 {
		return wardenerr.WithSuggestion(
			wardenerr.WithDetails(wardenerr.ErrUnsupportedCurve, map[string]string{"curve": w.Curve.String()}),
			"login needs an ethsecp256k1 wallet",
		)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	_, release, err := unlockFor(ctx, w.Address)
	if err != nil {
		return err
	}
	defer release()

	err = fn(ctx, siwe.NewSessionSigner(w.Address, cmdCtx.Sessions))
	if err != nil && ctx.Err() != nil && parent.Err() == nil {
		return wardenerr.ErrUserCancelled
	}
	return err
}

func printCredential(state siwe.State, cred *credential.Credential) error {
	st := authStatus{State: state.String()}
	if cred != nil {
		st.Address = cred.Address
		st.AccountID = cred.AccountID
		st.LinkedAddresses = cred.LinkedAddresses
		st.ExpiresAt = cred.ExpiresAt
	}
	return formatter.Record(st, []output.Field{
		{Label: "State", Value: st.State},
		{Label: "Address", Value: st.Address},
		{Label: "Account", Value: st.AccountID},
		{Label: "Linked", Value: strings.Join(st.LinkedAddresses, ", ")},
		{Label: "Expires", Value: formatTime(st.ExpiresAt)},
	}...)
}

func newIssuerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issuer",
		Short: "Run a local login issuer for development",
		Long: `Serve the issuer HTTP API from memory. Accounts, nonces and tokens are
lost when the process exits; use it to try auth login against a local URL.`,
		GroupID: "auth",
	}

	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the issuer API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issuer := siwe.NewMemoryIssuer(siwe.MemoryIssuerOptions{
				Domain:   cfg.Auth.Domain,
				NonceTTL: cfg.ChallengeTTL(),
			})
			srv := &http.Server{
				Addr:              addr,
				Handler:           siwe.NewHandler(issuer, logger),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			output.Info(os.Stderr, "issuer listening on %s (domain %s)", addr, cfg.Auth.Domain)

			select {
			case err := <-errCh:
				return wardenerr.WithCause(wardenerr.ErrNetworkError, err)
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), issuerShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.AddCommand(serve)
	return cmd
}
