package registry

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/vault"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

func TestNewEntry(t *testing.T) {
	t.Parallel()
	for _, curve := range keys.Curves() {
		t.Run(string(curve), func(t *testing.T) {
			t.Parallel()
			e := newTestEntry(t, phraseA, curve)
			assert.Equal(t, CurrentVersion, e.Version)
			assert.Equal(t, curve, e.Curve)
			assert.Len(t, e.Salt, vault.SaltSize)
			assert.NotEmpty(t, e.Ciphertext)
			assert.Equal(t, "test wallet", e.Nickname)
			assert.Equal(t, testCreatedAt, e.CreatedAt)
			assert.True(t, e.LastUsedAt.IsZero())
			require.NoError(t, e.Validate())
		})
	}
}

func TestNewEntry_Nil(t *testing.T) {
	t.Parallel()
	_, err := NewEntry(nil, nil, "", testCreatedAt)
	require.ErrorIs(t, err, wardenerr.ErrInvalidInput)
}

func TestEntry_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(e *Entry)
		want   error
	}{
		{"bad version", func(e *Entry) { e.Version = 99 }, wardenerr.ErrInvalidInput},
		{"bad curve", func(e *Entry) { e.Curve = "rsa" }, wardenerr.ErrUnsupportedCurve},
		{"bad address", func(e *Entry) { e.Address = "../../etc/passwd" }, wardenerr.ErrInvalidAddress},
		{"address does not match key", func(e *Entry) { e.Address = strings.Repeat("a", 40) }, wardenerr.ErrInvalidInput},
		{"empty public key", func(e *Entry) { e.PublicKey = nil }, wardenerr.ErrInvalidInput},
		{"short salt", func(e *Entry) { e.Salt = e.Salt[:4] }, wardenerr.ErrInvalidInput},
		{"empty ciphertext", func(e *Entry) { e.Ciphertext = nil }, wardenerr.ErrInvalidInput},
		{"long nickname", func(e *Entry) { e.Nickname = strings.Repeat("x", MaxNicknameLength+1) }, wardenerr.ErrInvalidInput},
	}

	base := newTestEntry(t, phraseA, keys.Ed25519)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := base.Clone()
			tt.mutate(e)
			require.ErrorIs(t, e.Validate(), tt.want)
		})
	}
}

func TestEntry_JSONHasNoPlaintext(t *testing.T) {
	t.Parallel()
	e := newTestEntry(t, phraseA, keys.EthSecp256k1)

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for name := range fields {
		assert.NotContains(t, name, "private")
		assert.NotContains(t, name, "seed")
		assert.NotContains(t, name, "phrase")
	}
	assert.NotContains(t, fields, "last_used_at")
	assert.NotContains(t, string(data), "abandon")

	var back Entry
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, e, &back)
}

func TestEntry_Reseal(t *testing.T) {
	t.Parallel()
	e := newTestEntry(t, phraseA, keys.Secp256k1)
	other := newTestEntry(t, phraseA, keys.Secp256k1)

	e.Reseal(other.Sealed())
	assert.Equal(t, other.Salt, e.Salt)
	assert.Equal(t, other.Ciphertext, e.Ciphertext)

	other.Salt[0] ^= 0xff
	assert.NotEqual(t, other.Salt, e.Salt, "reseal must copy")
}

func TestEntry_Clone(t *testing.T) {
	t.Parallel()
	e := newTestEntry(t, phraseA, keys.BLS12381)
	c := e.Clone()
	c.PublicKey[0] ^= 0xff
	c.Nickname = "changed"
	assert.NotEqual(t, e.PublicKey, c.PublicKey)
	assert.Equal(t, "test wallet", e.Nickname)
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	key, err := NormalizeAddress(" 0x9858EfFD232B4033E47d90003D41EC34EcaEda94 ")
	require.NoError(t, err)
	assert.Equal(t, "0x9858effd232b4033e47d90003d41ec34ecaeda94", key)

	key, err = NormalizeAddress(strings.Repeat("AB", 20))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ab", 20), key)

	for _, bad := range []string{"", "0x123", "../wallets/x", strings.Repeat("g", 40)} {
		_, err := NormalizeAddress(bad)
		require.ErrorIs(t, err, wardenerr.ErrInvalidAddress, bad)
	}
}

func TestSanitizeNickname(t *testing.T) {
	t.Parallel()
	got := SanitizeNickname("  main\nline\r ")
	assert.NotContains(t, got, "\n")
	assert.NotContains(t, got, "\r")
	assert.True(t, strings.HasPrefix(got, "main"))
	assert.True(t, strings.HasSuffix(got, "line"))
	assert.Len(t, []rune(SanitizeNickname(strings.Repeat("é", 100))), MaxNicknameLength)
	assert.Empty(t, SanitizeNickname("   "))
}
