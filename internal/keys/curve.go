// Package keys derives key pairs from seed phrases and signs with them.
//
// Four curves are supported. Each has a Signer that knows how to turn a
// private key into a public key and an address, and how to sign and verify.
// Nothing in this package logs or persists.
package keys

import (
	"encoding/json"
	"strings"

	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Curve selects a signature scheme.
type Curve string

// Supported curves.
const (
	Ed25519      Curve = "ed25519"
	BLS12381     Curve = "bls12381"
	Secp256k1    Curve = "secp256k1"
	EthSecp256k1 Curve = "ethsecp256k1"
)

// Curves lists every supported curve in display order.
func Curves() []Curve {
	return []Curve{Ed25519, BLS12381, Secp256k1, EthSecp256k1}
}

// ParseCurve accepts canonical names and the common aliases.
func ParseCurve(s string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ed25519", "edwards", "eddsa":
		return Ed25519, nil
	case "bls12381", "bls12-381", "bls":
		return BLS12381, nil
	case "secp256k1", "secp":
		return Secp256k1, nil
	case "ethsecp256k1", "eth_secp256k1", "eth-secp256k1", "eth":
		return EthSecp256k1, nil
	}
	return "", wardenerr.WithDetails(wardenerr.ErrUnsupportedCurve, map[string]string{"curve": s})
}

// String returns the canonical name.
func (c Curve) String() string {
	return string(c)
}

// Valid reports whether c is one of the supported curves.
func (c Curve) Valid() bool {
	switch c {
	case Ed25519, BLS12381, Secp256k1, EthSecp256k1:
		return true
	}
	return false
}

// CoinType is the derivation-path coin index used for the curve.
func (c Curve) CoinType() uint32 {
	switch c {
	case Ed25519:
		return 501
	case BLS12381:
		return 3600
	case Secp256k1:
		return 118
	case EthSecp256k1:
		return 60
	}
	return 0
}

// UnmarshalJSON rejects unknown curves at decode time.
func (c *Curve) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCurve(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// KeyMaterial is a derived key pair. PrivateKey lives in locked memory and
// must be released with Zero once encrypted.
type KeyMaterial struct {
	Curve      Curve
	Address    string
	PublicKey  []byte
	PrivateKey *wardencrypto.SecureBytes
}

// Zero wipes the private key.
func (k *KeyMaterial) Zero() {
	if k == nil || k.PrivateKey == nil {
		return
	}
	k.PrivateKey.Destroy()
}
