package siwe

import (
	"context"
	"sync"

	"github.com/mrz1836/warden/internal/credential"
	"github.com/mrz1836/warden/internal/metrics"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Linker binds further externally held addresses to the logged-in account.
type Linker struct {
	auth *Authenticator

	mu      sync.Mutex
	cancel  context.CancelCauseFunc
	untrack func()
}

// NewLinker returns a linker that uses auth's issuer, store and challenge
// settings.
func NewLinker(auth *Authenticator) *Linker {
	return &Linker{auth: auth}
}

// Link proves control of signer's address and binds it to the account. It
// fails with ErrNotAuthenticated before any nonce is requested when there is
// no valid credential. ErrAddressAlreadyLinked is returned as is.
func (l *Linker) Link(ctx context.Context, signer ExternalSigner) (cred *credential.Credential, err error) {
	if _, err := l.auth.Rehydrate(ctx); err != nil {
		return nil, err
	}
	current, ok := l.auth.Credential()
	if !ok {
		return nil, wardenerr.ErrNotAuthenticated
	}
	if signer == nil {
		return nil, wardenerr.ErrSignerUnavailable
	}

	flowCtx, err := l.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		l.finish()
		metrics.Global.RecordAuthFlow(err)
	}()

	if es, ok := signer.(EventSource); ok {
		stop := l.auth.watchWith(flowCtx, es, l.flowCancel())
		defer stop()
	}

	signed, c, err := l.auth.challenge(flowCtx, PurposeLink, signer, nil)
	if err != nil {
		return nil, err
	}

	res, err := l.auth.issuer.Link(flowCtx, current, signed)
	if err != nil {
		return nil, flowError(flowCtx, err)
	}

	updated := current.Clone()
	for _, addr := range res.LinkedAddresses {
		updated.AddLinked(addr)
	}
	updated.AddLinked(c.Address)
	if err := l.auth.store.Save(flowCtx, updated); err != nil {
		return nil, flowError(flowCtx, err)
	}
	if err := l.auth.commitLink(flowCtx, updated); err != nil {
		return nil, err
	}
	l.auth.debug("auth: linked %s to %s", c.Address, updated.AccountID)
	return updated, nil
}

// Cancel aborts an in-flight link with ErrUserCancelled.
func (l *Linker) Cancel() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel == nil {
		return false
	}
	l.cancel(wardenerr.ErrUserCancelled)
	return true
}

func (l *Linker) begin(ctx context.Context) (context.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return nil, wardenerr.ErrAuthInProgress
	}
	flowCtx, cancel := context.WithCancelCause(ctx)
	l.cancel = cancel
	l.untrack = l.auth.trackLink(cancel)
	return flowCtx, nil
}

func (l *Linker) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel(nil)
		l.cancel = nil
	}
	if l.untrack != nil {
		l.untrack()
		l.untrack = nil
	}
}

func (l *Linker) flowCancel() context.CancelCauseFunc {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel
}
