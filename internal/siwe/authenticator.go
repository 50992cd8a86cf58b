package siwe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/mrz1836/warden/internal/credential"
	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/metrics"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// DefaultChallengeTTL bounds how long a built challenge may wait for a signature.
const DefaultChallengeTTL = 5 * time.Minute

// State is the login progress of an Authenticator.
type State int

// Authenticator states.
const (
	StateInitial State = iota
	StateAwaitingSigner
	StateAwaitingSignature
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateAwaitingSigner:
		return "awaiting_signer"
	case StateAwaitingSignature:
		return "awaiting_signature"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Config holds the fields embedded in every challenge.
type Config struct {
	Domain    string
	URI       string
	Statement string
	ChainID   uint64
	TTL       time.Duration
}

// LogWriter is the logging surface the authenticator needs.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Options configures an Authenticator.
type Options struct {
	Clock  clock.Clock
	Logger LogWriter
}

// Authenticator drives the login flow against an Issuer and keeps the
// resulting credential in a credential.Store. One flow runs at a time.
type Authenticator struct {
	issuer Issuer
	store  credential.Store
	cfg    Config
	clock  clock.Clock
	logger LogWriter

	mu     sync.Mutex
	state  State
	cancel context.CancelCauseFunc
	cred   *credential.Credential

	// links holds the cancel funcs of in-flight Linker flows so Logout can
	// abort them.
	links    map[uint64]context.CancelCauseFunc
	nextLink uint64
}

// NewAuthenticator creates an authenticator in StateInitial.
func NewAuthenticator(issuer Issuer, store credential.Store, cfg Config, opts Options) *Authenticator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultChallengeTTL
	}
	a := &Authenticator{
		issuer: issuer,
		store:  store,
		cfg:    cfg,
		clock:  opts.Clock,
		logger: opts.Logger,
		links:  make(map[uint64]context.CancelCauseFunc),
	}
	if a.clock == nil {
		a.clock = clock.NewDefaultClock()
	}
	return a
}

// State returns the current state.
func (a *Authenticator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expireLocked()
	return a.state
}

// Credential returns a copy of the credential while authenticated.
func (a *Authenticator) Credential() (*credential.Credential, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expireLocked()
	if a.state != StateAuthenticated {
		return nil, false
	}
	return a.cred.Clone(), true
}

// Rehydrate moves Initial straight to Authenticated when the store holds an
// unexpired credential. An expired one is cleared. It reports whether the
// authenticator is authenticated afterwards.
func (a *Authenticator) Rehydrate(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expireLocked()
	if a.state != StateInitial {
		return a.state == StateAuthenticated, nil
	}

	cred, err := a.store.Load(ctx)
	switch {
	case errors.Is(err, wardenerr.ErrCredentialNotFound), errors.Is(err, credential.ErrCredentialCorrupted):
		a.debug("auth: no stored credential (%s)", wardenerr.Code(err))
		return false, nil
	case err != nil:
		return false, err
	}

	if !cred.Valid(a.clock.Now()) {
		a.debug("auth: stored credential for %s expired", cred.Address)
		if err := a.store.Clear(ctx); err != nil {
			a.logError("auth: clearing expired credential: %v", err)
		}
		return false, nil
	}

	a.cred = cred
	a.transitionLocked(StateAuthenticated)
	return true, nil
}

// Login runs the challenge-response flow with signer. On success the
// credential is saved and returned; on any failure the state returns to
// Initial and nothing is saved.
func (a *Authenticator) Login(ctx context.Context, signer ExternalSigner) (cred *credential.Credential, err error) {
	if signer == nil {
		return nil, wardenerr.ErrSignerUnavailable
	}
	flowCtx, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err = a.finish(flowCtx, cred, err); err != nil {
			cred = nil
		}
		metrics.Global.RecordAuthFlow(err)
	}()

	if es, ok := signer.(EventSource); ok {
		stop := a.watchWith(flowCtx, es, a.flowCancel())
		defer stop()
	}

	signed, c, err := a.challenge(flowCtx, PurposeLogin, signer, func() {
		a.advance(StateAwaitingSignature)
	})
	if err != nil {
		return nil, err
	}

	res, err := a.issuer.Verify(flowCtx, signed)
	if err != nil {
		return nil, flowError(flowCtx, err)
	}

	cred = &credential.Credential{
		Token:           res.Token,
		Address:         c.Address,
		AccountID:       res.AccountID,
		LinkedAddresses: res.LinkedAddresses,
		ExpiresAt:       res.ExpiresAt,
	}
	if err := a.store.Save(flowCtx, cred); err != nil {
		return nil, flowError(flowCtx, err)
	}
	return cred.Clone(), nil
}

// Cancel aborts an in-flight flow with ErrUserCancelled. It reports whether
// there was one.
func (a *Authenticator) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel == nil {
		return false
	}
	a.cancel(wardenerr.ErrUserCancelled)
	return true
}

// Logout clears the stored credential and returns to Initial. In-flight
// login and link flows are cancelled; a login reaches Initial when it
// unwinds, and neither can put the credential back.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cred = nil
	if a.cancel != nil {
		a.cancel(wardenerr.ErrUserCancelled)
	} else {
		a.transitionLocked(StateInitial)
	}
	for _, cancel := range a.links {
		cancel(wardenerr.ErrUserCancelled)
	}
	return a.store.Clear(ctx)
}

func (a *Authenticator) begin(ctx context.Context) (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expireLocked()
	switch a.state {
	case StateAuthenticated:
		return nil, wardenerr.ErrAlreadyAuthenticated
	case StateAwaitingSigner, StateAwaitingSignature:
		return nil, wardenerr.ErrAuthInProgress
	}
	flowCtx, cancel := context.WithCancelCause(ctx)
	a.cancel = cancel
	a.transitionLocked(StateAwaitingSigner)
	return flowCtx, nil
}

// finish settles a login flow. A flow cancelled after its credential was
// saved still fails, and the saved credential is cleared again.
func (a *Authenticator) finish(flowCtx context.Context, cred *credential.Credential, err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil && context.Cause(flowCtx) != nil {
		err = flowError(flowCtx, context.Cause(flowCtx))
		a.clearLocked(flowCtx)
	}
	if a.cancel != nil {
		a.cancel(nil)
		a.cancel = nil
	}
	if err != nil {
		a.debug("auth: flow failed: %s", wardenerr.Code(err))
		a.cred = nil
		a.transitionLocked(StateInitial)
		return err
	}
	a.cred = cred.Clone()
	a.transitionLocked(StateAuthenticated)
	return nil
}

// clearLocked wipes the store on behalf of an aborted flow. The flow's own
// context is already done, so the clear runs without its cancellation.
func (a *Authenticator) clearLocked(flowCtx context.Context) {
	if err := a.store.Clear(context.WithoutCancel(flowCtx)); err != nil {
		a.logError("auth: clearing credential of aborted flow: %v", err)
	}
}

// trackLink registers an in-flight link so Logout can cancel it. The
// returned func unregisters it.
func (a *Authenticator) trackLink(cancel context.CancelCauseFunc) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextLink
	a.nextLink++
	a.links[id] = cancel
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.links, id)
	}
}

// commitLink adopts a credential the link flow on flowCtx has saved. When
// the flow was aborted meanwhile, or the session ended, the store is put
// back to what the authenticator holds.
func (a *Authenticator) commitLink(flowCtx context.Context, updated *credential.Credential) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expireLocked()
	aborted := context.Cause(flowCtx) != nil
	if !aborted && a.state == StateAuthenticated {
		a.cred = updated.Clone()
		return nil
	}

	if a.state == StateAuthenticated {
		if err := a.store.Save(context.WithoutCancel(flowCtx), a.cred); err != nil {
			a.logError("auth: restoring credential after aborted link: %v", err)
		}
	} else {
		a.clearLocked(flowCtx)
	}
	if aborted {
		return flowError(flowCtx, context.Cause(flowCtx))
	}
	return wardenerr.ErrNotAuthenticated
}

// advance moves an in-flight flow forward. A flow that was cancelled meanwhile
// is left alone.
func (a *Authenticator) advance(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.transitionLocked(s)
	}
}

func (a *Authenticator) expireLocked() {
	if a.state == StateAuthenticated && !a.cred.Valid(a.clock.Now()) {
		a.debug("auth: credential expired")
		a.cred = nil
		a.transitionLocked(StateInitial)
	}
}

func (a *Authenticator) transitionLocked(s State) {
	if a.state != s {
		a.debug("auth: %s -> %s", a.state, s)
		a.state = s
	}
}

// challenge runs the exchange shared by login and link: address, nonce,
// message, signature. The nonce is always fetched before the message is
// built, and a challenge that expired while waiting is never returned.
func (a *Authenticator) challenge(ctx context.Context, purpose Purpose, signer ExternalSigner, nonceReceived func()) (SignedMessage, *Challenge, error) {
	address, err := signer.Address(ctx)
	if err != nil {
		return SignedMessage{}, nil, signerError(ctx, err)
	}
	if !keys.IsHexAddress(address) {
		return SignedMessage{}, nil, wardenerr.WithDetails(wardenerr.ErrInvalidAddress, map[string]string{"address": address})
	}
	address = keys.ChecksumAddress(address)

	nonce, err := a.issuer.Nonce(ctx, address)
	if err != nil {
		return SignedMessage{}, nil, flowError(ctx, err)
	}

	issuedAt := a.clock.Now().UTC().Truncate(time.Second)
	expires := issuedAt.Add(a.cfg.TTL)
	if !nonce.ExpiresAt.IsZero() && nonce.ExpiresAt.Before(expires) {
		expires = nonce.ExpiresAt.UTC().Truncate(time.Second)
	}
	if !expires.After(issuedAt) {
		return SignedMessage{}, nil, wardenerr.ErrChallengeExpired
	}

	c := &Challenge{
		Purpose:        purpose,
		Domain:         a.cfg.Domain,
		Address:        address,
		Statement:      a.cfg.Statement,
		URI:            a.cfg.URI,
		Version:        MessageVersion,
		ChainID:        a.cfg.ChainID,
		Nonce:          nonce.Value,
		IssuedAt:       issuedAt,
		ExpirationTime: expires,
	}
	text, err := c.Message()
	if err != nil {
		return SignedMessage{}, nil, err
	}
	if nonceReceived != nil {
		nonceReceived()
	}

	sig, err := signer.SignMessage(ctx, text)
	if err != nil {
		return SignedMessage{}, nil, signerError(ctx, err)
	}
	if c.Expired(a.clock.Now()) {
		return SignedMessage{}, nil, wardenerr.ErrChallengeExpired
	}
	return SignedMessage{Message: text, Signature: sig}, c, nil
}

// watchWith aborts the flow on ctx through cancel when the signer
// disconnects or switches chain.
func (a *Authenticator) watchWith(ctx context.Context, es EventSource, cancel context.CancelCauseFunc) func() {
	events, unsubscribe := es.Subscribe()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				a.debug("auth: signer event %s", ev.Kind)
				if ev.Kind == EventDisconnected || ev.Kind == EventChainChanged {
					cancel(wardenerr.WithDetails(wardenerr.ErrSignerUnavailable, map[string]string{
						"event": ev.Kind.String(),
					}))
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		unsubscribe()
	}
}

func (a *Authenticator) flowCancel() context.CancelCauseFunc {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel
}

// flowError prefers the reason the flow was aborted over the error the
// interrupted call happened to return.
func flowError(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	cause := context.Cause(ctx)
	var we *wardenerr.WardenError
	if errors.As(cause, &we) {
		return cause
	}
	if errors.Is(cause, context.Canceled) {
		return wardenerr.WithCause(wardenerr.ErrUserCancelled, cause)
	}
	return cause
}

func signerError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return flowError(ctx, err)
	}
	var we *wardenerr.WardenError
	if errors.As(err, &we) {
		return err
	}
	return wardenerr.WithCause(wardenerr.ErrSignerUnavailable, err)
}

func (a *Authenticator) debug(format string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(format, args...)
	}
}

func (a *Authenticator) logError(format string, args ...any) {
	if a.logger != nil {
		a.logger.Error(format, args...)
	}
}
