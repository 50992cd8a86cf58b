package siwe

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrz1836/warden/internal/keys"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// PersonalMessage returns the EIP-191 version 0x45 framing of message.
// Keccak-256 of the result is what personal_sign signs.
func PersonalMessage(message string) []byte {
	_, framed := accounts.TextAndHash([]byte(message))
	return []byte(framed)
}

// RecoverAddress returns the EIP-55 address that produced sig over message
// with personal_sign. V may be 0/1 or 27/28.
func RecoverAddress(message string, sig []byte) (string, error) {
	if len(sig) != crypto.SignatureLength {
		return "", wardenerr.WithDetails(wardenerr.ErrNonceRejected, map[string]string{"signature": "length"})
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), normalized)
	if err != nil {
		return "", wardenerr.WithCause(wardenerr.ErrNonceRejected, err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// VerifyPersonalSignature checks that address signed message.
func VerifyPersonalSignature(message string, sig []byte, address string) error {
	recovered, err := RecoverAddress(message, sig)
	if err != nil {
		return err
	}
	if !keys.IsHexAddress(address) || !strings.EqualFold(recovered, address) {
		return wardenerr.WithDetails(wardenerr.ErrNonceRejected, map[string]string{"signature": "signer mismatch"})
	}
	return nil
}
