package keys

import (
	"crypto/ed25519"
)

// ed25519Signer stores the 32-byte RFC 8032 seed as the private key.
type ed25519Signer struct{}

func (ed25519Signer) Curve() Curve { return Ed25519 }

func (ed25519Signer) PublicKey(priv []byte) ([]byte, error) {
	if len(priv) != ed25519.SeedSize {
		return nil, invalidKey("ed25519 private key must be 32 bytes")
	}
	full := ed25519.NewKeyFromSeed(priv)
	defer wipe(full)
	pub := make([]byte, ed25519.PublicKeySize)
	copy(pub, full[ed25519.SeedSize:])
	return pub, nil
}

func (ed25519Signer) Address(pub []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", invalidKey("ed25519 public key must be 32 bytes")
	}
	return hashAddress(pub), nil
}

func (ed25519Signer) Sign(priv, msg []byte) ([]byte, error) {
	if len(priv) != ed25519.SeedSize {
		return nil, invalidKey("ed25519 private key must be 32 bytes")
	}
	full := ed25519.NewKeyFromSeed(priv)
	defer wipe(full)
	return ed25519.Sign(full, msg), nil
}

func (ed25519Signer) Verify(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
