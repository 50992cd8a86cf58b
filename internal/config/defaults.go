package config

import "github.com/mrz1836/warden/internal/vault"

// Default endpoints. Local development services; production installs set
// their own in config.yaml or through the environment.
const (
	DefaultIssuerURL    = "http://localhost:8080"
	DefaultBroadcastURL = "http://localhost:50002"
	DefaultDomain       = "localhost"
	DefaultURI          = "http://localhost:3000"
	DefaultStatement    = "Sign in to the launchpad."
)

// Defaults returns the default configuration.
func Defaults() *Config {
	kdf := vault.DefaultParams()
	return &Config{
		Version: 1,
		Home:    "~/.warden",
		Network: NetworkConfig{
			NetworkID:    1,
			ChainID:      1,
			BroadcastURL: DefaultBroadcastURL,
		},
		Auth: AuthConfig{
			IssuerURL:           DefaultIssuerURL,
			Domain:              DefaultDomain,
			URI:                 DefaultURI,
			Statement:           DefaultStatement,
			ChallengeTTLSeconds: 300,
			SignerChainID:       1,
		},
		Registry: RegistryConfig{
			Backend: RegistryFile,
		},
		Security: SecurityConfig{
			Argon2Time:      kdf.Time,
			Argon2MemoryKiB: kdf.MemoryKiB,
			Argon2Threads:   kdf.Threads,
			AutoLockSeconds: 0,
			CredentialStore: CredentialKeyring,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.warden/warden.log",
		},
	}
}
