package vault_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/vault"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

func lightVault() *vault.Vault {
	return vault.New(vault.WithParams(vault.Params{Time: 1, MemoryKiB: 64, Threads: 1}))
}

func testKey() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i + 1)
	}
	return k
}

func TestVault_RoundTrip(t *testing.T) {
	t.Parallel()
	v := lightVault()
	key := testKey()

	sealed, err := v.Encrypt(key, []byte("correct-password"))
	require.NoError(t, err)
	assert.Len(t, sealed.Salt, vault.SaltSize)
	assert.False(t, bytes.Contains(sealed.Ciphertext, key))

	plain, err := v.Decrypt(sealed.Ciphertext, sealed.Salt, []byte("correct-password"))
	require.NoError(t, err)
	defer plain.Destroy()
	assert.Equal(t, key, plain.Bytes())
}

func TestVault_FreshSaltEveryCall(t *testing.T) {
	t.Parallel()
	v := lightVault()

	a, err := v.Encrypt(testKey(), []byte("pw"))
	require.NoError(t, err)
	b, err := v.Encrypt(testKey(), []byte("pw"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestVault_WrongPassword(t *testing.T) {
	t.Parallel()
	v := lightVault()
	sealed, err := v.Encrypt(testKey(), []byte("correct-password"))
	require.NoError(t, err)

	plain, err := v.Decrypt(sealed.Ciphertext, sealed.Salt, []byte("wrong-password"))
	require.ErrorIs(t, err, wardenerr.ErrWrongPassword)
	assert.Nil(t, plain)
}

func TestVault_CorruptionLooksLikeWrongPassword(t *testing.T) {
	t.Parallel()
	v := lightVault()
	pw := []byte("correct-password")
	sealed, err := v.Encrypt(testKey(), pw)
	require.NoError(t, err)

	flip := func(b []byte, i int) []byte {
		c := append([]byte(nil), b...)
		c[i] ^= 0xff
		return c
	}
	last := len(sealed.Ciphertext) - 1

	tests := []struct {
		name       string
		ciphertext []byte
		salt       []byte
	}{
		{"flipped tag", flip(sealed.Ciphertext, last), sealed.Salt},
		{"flipped nonce", flip(sealed.Ciphertext, 12), sealed.Salt},
		{"flipped header time", flip(sealed.Ciphertext, 4), sealed.Salt},
		{"bad version", flip(sealed.Ciphertext, 0), sealed.Salt},
		{"truncated", sealed.Ciphertext[:20], sealed.Salt},
		{"empty", nil, sealed.Salt},
		{"other salt", sealed.Ciphertext, flip(sealed.Salt, 0)},
		{"short salt", sealed.Ciphertext, sealed.Salt[:8]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Decrypt(tt.ciphertext, tt.salt, pw)
			require.ErrorIs(t, err, wardenerr.ErrWrongPassword)
			assert.Equal(t, wardenerr.ErrWrongPassword.Error(), err.Error())
		})
	}
}

func TestVault_RejectsUnboundedParams(t *testing.T) {
	t.Parallel()
	v := lightVault()
	sealed, err := v.Encrypt(testKey(), []byte("pw"))
	require.NoError(t, err)

	// memory field set to 0xffffffff KiB
	c := append([]byte(nil), sealed.Ciphertext...)
	c[5], c[6], c[7], c[8] = 0xff, 0xff, 0xff, 0xff

	_, err = v.Decrypt(c, sealed.Salt, []byte("pw"))
	require.ErrorIs(t, err, wardenerr.ErrWrongPassword)
}

func TestVault_ParamsTravelWithRecord(t *testing.T) {
	t.Parallel()
	sealed, err := vault.New(vault.WithParams(vault.Params{Time: 2, MemoryKiB: 128, Threads: 2})).
		Encrypt(testKey(), []byte("pw"))
	require.NoError(t, err)

	plain, err := lightVault().Decrypt(sealed.Ciphertext, sealed.Salt, []byte("pw"))
	require.NoError(t, err)
	defer plain.Destroy()
	assert.Equal(t, testKey(), plain.Bytes())
}

func TestVault_EncryptValidation(t *testing.T) {
	t.Parallel()
	v := lightVault()

	_, err := v.Encrypt(nil, []byte("pw"))
	require.ErrorIs(t, err, wardenerr.ErrInvalidInput)
	_, err = v.Encrypt(testKey(), nil)
	require.ErrorIs(t, err, wardenerr.ErrInvalidInput)

	_, err = vault.New(vault.WithParams(vault.Params{})).Encrypt(testKey(), []byte("pw"))
	require.ErrorIs(t, err, wardenerr.ErrInvalidInput)
}

func TestVault_WithRand(t *testing.T) {
	t.Parallel()
	src := bytes.NewReader(bytes.Repeat([]byte{7}, vault.SaltSize+24))
	v := vault.New(vault.WithParams(vault.Params{Time: 1, MemoryKiB: 64, Threads: 1}), vault.WithRand(src))

	sealed, err := v.Encrypt(testKey(), []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{7}, vault.SaltSize), sealed.Salt)

	_, err = v.Encrypt(testKey(), []byte("pw"))
	require.Error(t, err, "exhausted reader")
}

func TestDefaultParams(t *testing.T) {
	t.Parallel()
	p := vault.New().Params()
	assert.Equal(t, vault.DefaultParams(), p)
	assert.Equal(t, uint32(64*1024), p.MemoryKiB)
}
