package credential

import (
	"time"

	"github.com/zalando/go-keyring"
)

// probeTimeout bounds the keyring probe so a hung keyring daemon does not
// stall CLI startup.
const probeTimeout = 3 * time.Second

// OSKeyring implements Keyring using the OS keychain.
type OSKeyring struct{}

// NewOSKeyring creates a new OS keyring wrapper.
func NewOSKeyring() *OSKeyring {
	return &OSKeyring{}
}

// Set stores a secret in the OS keyring.
func (k *OSKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

// Get retrieves a secret from the OS keyring.
func (k *OSKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Delete removes a secret from the OS keyring.
func (k *OSKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// Probe reports whether kr can store, read back and delete a value within
// probeTimeout.
func Probe(kr Keyring) bool {
	ch := make(chan bool, 1)
	go func() {
		ch <- probeSync(kr)
	}()

	select {
	case ok := <-ch:
		return ok
	case <-time.After(probeTimeout):
		return false
	}
}

func probeSync(kr Keyring) bool {
	const (
		testService = "warden-probe"
		testUser    = "probe"
		testValue   = "test"
	)

	if err := kr.Set(testService, testUser, testValue); err != nil {
		return false
	}

	val, err := kr.Get(testService, testUser)
	if err != nil || val != testValue {
		_ = kr.Delete(testService, testUser)
		return false
	}

	return kr.Delete(testService, testUser) == nil
}
