package session

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/metrics"
	"github.com/mrz1836/warden/internal/registry"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Options configures a Manager.
type Options struct {
	// Clock drives auto-lock. Defaults to the wall clock.
	Clock clock.Clock

	// AutoLock locks a wallet idle for this long. Zero disables it.
	// Expiry is checked on access; no timer holds key material.
	AutoLock time.Duration

	Logger LogWriter
}

// slot is one wallet's session plus its in-flight guard.
type slot struct {
	state state
	busy  bool

	// retired holds a key locked while an operation was using it; it is
	// wiped when that operation finishes.
	retired *wardencrypto.SecureBytes
}

// Manager owns every unlocked key in the process.
type Manager struct {
	entries   EntrySource
	decrypter Decrypter
	clock     clock.Clock
	autoLock  time.Duration
	logger    LogWriter

	mu    sync.Mutex
	slots map[string]*slot
}

// NewManager creates a manager with every wallet Locked.
func NewManager(entries EntrySource, decrypter Decrypter, opts *Options) *Manager {
	m := &Manager{
		entries:   entries,
		decrypter: decrypter,
		clock:     clock.NewDefaultClock(),
		slots:     make(map[string]*slot),
	}
	if opts != nil {
		if opts.Clock != nil {
			m.clock = opts.Clock
		}
		m.autoLock = opts.AutoLock
		m.logger = opts.Logger
	}
	return m
}

// Unlock decrypts the wallet's key with password and moves it to Unlocked.
// Unlocking an Unlocked wallet succeeds without touching the record. On any
// failure the wallet stays Locked and decrypted bytes are wiped.
func (m *Manager) Unlock(ctx context.Context, address string, password []byte) (err error) {
	key, err := registry.NormalizeAddress(address)
	if err != nil {
		return err
	}

	s, err := m.acquire(key)
	if err != nil {
		return err
	}
	defer m.release(key, s)

	if m.current(s) != nil {
		return nil
	}

	defer func() { metrics.Global.RecordUnlock(err) }()

	entry, err := m.entries.Get(ctx, address)
	if err != nil {
		return err
	}
	if entry.Locked {
		return wardenerr.WithSuggestion(
			wardenerr.WithDetails(wardenerr.ErrPermission, map[string]string{"address": entry.Address}),
			"the wallet is frozen in the registry; clear the lock flag first",
		)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	secret, err := m.decrypter.Decrypt(entry.Ciphertext, entry.Salt, password)
	if err != nil {
		m.debug("session: unlock %s failed: %s", entry.Address, wardenerr.Code(err))
		return wardenerr.ErrWrongPassword
	}

	if err := ctx.Err(); err != nil {
		secret.Destroy()
		return err
	}

	if err := verifyKey(entry, secret); err != nil {
		secret.Destroy()
		m.logError("session: %s decrypted to a key that does not match its record", entry.Address)
		return err
	}

	now := m.clock.Now()
	m.mu.Lock()
	s.state = &unlocked{
		key:        secret,
		curve:      entry.Curve,
		publicKey:  append([]byte(nil), entry.PublicKey...),
		unlockedAt: now,
		lastUsedAt: now,
	}
	m.mu.Unlock()

	m.debug("session: %s unlocked (%s)", entry.Address, entry.Curve)
	return nil
}

// Lock wipes the wallet's key and moves it to Locked. Locking a Locked
// wallet is a no-op. If an operation is using the key, the wallet is Locked
// immediately and the key is wiped as soon as that operation returns.
func (m *Manager) Lock(address string) error {
	key, err := registry.NormalizeAddress(address)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[key]
	if !ok {
		return nil
	}
	if m.lockSlot(s) {
		m.debug("session: %s locked", address)
	}
	m.dropLocked(key, s)
	return nil
}

// LockAll locks every wallet and returns how many were Unlocked.
func (m *Manager) LockAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, s := range m.slots {
		if m.lockSlot(s) {
			n++
		}
		m.dropLocked(key, s)
	}
	if n > 0 {
		m.debug("session: locked %d wallet(s)", n)
	}
	return n
}

// ExpireIdle locks wallets idle past AutoLock and returns how many it locked.
func (m *Manager) ExpireIdle() int {
	if m.autoLock <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, s := range m.slots {
		if u, ok := s.state.(*unlocked); ok && m.idle(u) {
			m.lockSlot(s)
			m.dropLocked(key, s)
			n++
		}
	}
	return n
}

// WithKey lends the wallet's key to fn. A Locked wallet returns
// ErrWalletLocked; it is never unlocked implicitly. fn must not retain
// Key.PrivateKey.
func (m *Manager) WithKey(ctx context.Context, address string, fn func(Key) error) error {
	key, err := registry.NormalizeAddress(address)
	if err != nil {
		return err
	}

	s, err := m.acquire(key)
	if err != nil {
		return err
	}
	defer m.release(key, s)

	u := m.current(s)
	if u == nil {
		return wardenerr.WithDetails(wardenerr.ErrWalletLocked, map[string]string{"address": address})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// u.key stays valid for the call: Lock defers the wipe while busy.
	err = fn(Key{
		Address:    address,
		Curve:      u.curve,
		PublicKey:  append([]byte(nil), u.publicKey...),
		PrivateKey: u.key.Bytes(),
	})

	m.mu.Lock()
	u.lastUsedAt = m.clock.Now()
	m.mu.Unlock()
	return err
}

// Exclusive runs fn while holding the wallet's in-flight guard. No Unlock or
// WithKey on the same wallet can run meanwhile; a wallet already in use
// fails with ErrWalletBusy. The session state is left as is.
func (m *Manager) Exclusive(ctx context.Context, address string, fn func() error) error {
	key, err := registry.NormalizeAddress(address)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s, err := m.acquire(key)
	if err != nil {
		return err
	}
	defer m.release(key, s)
	return fn()
}

// IsUnlocked reports whether the wallet is Unlocked, applying auto-lock.
func (m *Manager) IsUnlocked(address string) bool {
	return m.Status(address).Unlocked
}

// Status returns the wallet's session state, applying auto-lock.
func (m *Manager) Status(address string) Status {
	st := Status{Address: address}
	key, err := registry.NormalizeAddress(address)
	if err != nil {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		return st
	}
	if u := m.checkIdleLocked(s); u != nil {
		st.Unlocked = true
		st.Curve = u.curve
		st.UnlockedAt = u.unlockedAt
		st.LastUsedAt = u.lastUsedAt
	}
	return st
}

// Unlocked returns the lookup keys of all Unlocked wallets, sorted.
func (m *Manager) Unlocked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.slots))
	for key, s := range m.slots {
		if m.checkIdleLocked(s) != nil {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// acquire marks the slot busy or fails with ErrWalletBusy.
func (m *Manager) acquire(key string) (*slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[key]
	if !ok {
		s = &slot{state: locked{}}
		m.slots[key] = s
	}
	if s.busy {
		return nil, wardenerr.WithDetails(wardenerr.ErrWalletBusy, map[string]string{"address": key})
	}
	s.busy = true
	return s, nil
}

func (m *Manager) release(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.busy = false
	if s.retired != nil {
		s.retired.Destroy()
		s.retired = nil
	}
	m.dropLocked(key, s)
}

// dropLocked forgets s once it is idle and Locked, so addresses that were
// only ever tried do not pile up. Caller holds mu.
func (m *Manager) dropLocked(key string, s *slot) {
	if s.busy || s.retired != nil {
		return
	}
	if _, ok := s.state.(locked); ok && m.slots[key] == s {
		delete(m.slots, key)
	}
}

// current returns the unlocked state after applying auto-lock, or nil.
func (m *Manager) current(s *slot) *unlocked {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkIdleLocked(s)
}

// checkIdleLocked applies auto-lock to s. Caller holds mu.
func (m *Manager) checkIdleLocked(s *slot) *unlocked {
	u, ok := s.state.(*unlocked)
	if !ok {
		return nil
	}
	if m.idle(u) {
		m.lockSlot(s)
		return nil
	}
	return u
}

func (m *Manager) idle(u *unlocked) bool {
	return m.autoLock > 0 && m.clock.Now().Sub(u.lastUsedAt) >= m.autoLock
}

// lockSlot moves s to Locked. Caller holds mu.
func (m *Manager) lockSlot(s *slot) bool {
	u, ok := s.state.(*unlocked)
	if !ok {
		return false
	}
	s.state = locked{}
	if s.busy {
		s.retired = u.key
	} else {
		u.key.Destroy()
	}
	return true
}

// verifyKey checks that the decrypted key re-derives the recorded public key.
func verifyKey(entry *registry.Entry, secret *wardencrypto.SecureBytes) error {
	signer, err := keys.SignerFor(entry.Curve)
	if err != nil {
		return err
	}
	pub, err := signer.PublicKey(secret.Bytes())
	if err != nil || !bytes.Equal(pub, entry.PublicKey) {
		return wardenerr.ErrWrongPassword
	}
	return nil
}

func (m *Manager) debug(format string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(format, args...)
	}
}

func (m *Manager) logError(format string, args ...any) {
	if m.logger != nil {
		m.logger.Error(format, args...)
	}
}
