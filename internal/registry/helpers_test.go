package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/vault"
)

const (
	phraseA = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	phraseB = "legal winner thank year wave sausage worth useful legal winner thank yellow"
)

var testCreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestEntry(t *testing.T, phrase string, curve keys.Curve) *Entry {
	t.Helper()
	km, err := keys.Derive(phrase, curve)
	require.NoError(t, err)
	defer km.Zero()

	v := vault.New(vault.WithParams(vault.Params{Time: 1, MemoryKiB: 64, Threads: 1}))
	sealed, err := v.Encrypt(km.PrivateKey.Bytes(), []byte("password"))
	require.NoError(t, err)

	e, err := NewEntry(km, sealed, "test wallet", testCreatedAt)
	require.NoError(t, err)
	return e
}
