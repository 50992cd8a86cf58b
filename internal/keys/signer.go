package keys

import (
	"crypto/sha256"
	"encoding/hex"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Signer implements one curve's key and signature operations.
type Signer interface {
	Curve() Curve
	// PublicKey derives the public key bytes stored in registry records.
	PublicKey(priv []byte) ([]byte, error)
	// Address derives the ledger address for pub.
	Address(pub []byte) (string, error)
	// Sign signs msg. Hashing, where the curve needs it, happens inside.
	Sign(priv, msg []byte) ([]byte, error)
	// Verify checks sig over msg for pub.
	Verify(pub, msg, sig []byte) bool
}

// SignerFor returns the signer for curve or ErrUnsupportedCurve.
func SignerFor(curve Curve) (Signer, error) {
	switch curve {
	case Ed25519:
		return ed25519Signer{}, nil
	case BLS12381:
		return blsSigner{}, nil
	case Secp256k1:
		return secpSigner{}, nil
	case EthSecp256k1:
		return ethSigner{}, nil
	}
	return nil, wardenerr.WithDetails(wardenerr.ErrUnsupportedCurve, map[string]string{"curve": string(curve)})
}

// AddressFromPublicKey is a convenience over SignerFor(curve).Address.
func AddressFromPublicKey(curve Curve, pub []byte) (string, error) {
	s, err := SignerFor(curve)
	if err != nil {
		return "", err
	}
	return s.Address(pub)
}

// hashAddress is the address scheme shared by the non-Ethereum curves:
// lowercase hex of the first 20 bytes of SHA-256(pub).
func hashAddress(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:20])
}

func invalidKey(what string) error {
	return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"key": what})
}
