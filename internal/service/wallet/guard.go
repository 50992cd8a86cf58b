package wallet

import (
	"sync"

	"github.com/mrz1836/warden/internal/registry"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// recordGuard serializes read-modify-write cycles on one registry record.
// A record that is already claimed fails with ErrWalletBusy rather than
// waiting, matching the session manager's in-flight guard.
type recordGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newRecordGuard() *recordGuard {
	return &recordGuard{held: make(map[string]struct{})}
}

// claim takes the record at address. The returned func gives it back.
func (g *recordGuard) claim(address string) (func(), error) {
	key, err := registry.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, wardenerr.WithDetails(wardenerr.ErrWalletBusy, map[string]string{"address": address})
	}
	g.held[key] = struct{}{}
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.held, key)
	}, nil
}
