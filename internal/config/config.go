// Package config provides configuration management for Warden.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/warden/internal/fileutil"
	"github.com/mrz1836/warden/internal/vault"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Registry backends.
const (
	RegistryFile   = "file"
	RegistryRemote = "remote"
)

// Credential stores.
const (
	CredentialKeyring = "keyring"
	CredentialMemory  = "memory"
)

// Config represents the application configuration.
type Config struct {
	Version  int            `json:"version" yaml:"version"`
	Home     string         `json:"home" yaml:"home"`
	Network  NetworkConfig  `json:"network" yaml:"network"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Registry RegistryConfig `json:"registry" yaml:"registry"`
	Security SecurityConfig `json:"security" yaml:"security"`
	Output   OutputConfig   `json:"output" yaml:"output"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// NetworkConfig identifies the ledger transactions are built for.
type NetworkConfig struct {
	NetworkID    uint64 `json:"network_id" yaml:"network_id"`
	ChainID      uint64 `json:"chain_id" yaml:"chain_id"`
	BroadcastURL string `json:"broadcast_url" yaml:"broadcast_url"`
}

// AuthConfig defines the challenge-response login settings.
type AuthConfig struct {
	IssuerURL           string `json:"issuer_url" yaml:"issuer_url"`
	Domain              string `json:"domain" yaml:"domain"`
	URI                 string `json:"uri" yaml:"uri"`
	Statement           string `json:"statement" yaml:"statement"`
	ChallengeTTLSeconds int    `json:"challenge_ttl_seconds" yaml:"challenge_ttl_seconds"`
	SignerChainID       uint64 `json:"signer_chain_id" yaml:"signer_chain_id"`
}

// RegistryConfig selects where wallet records live.
type RegistryConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
}

// SecurityConfig defines key-protection settings.
type SecurityConfig struct {
	Argon2Time      uint32 `json:"argon2_time" yaml:"argon2_time"`
	Argon2MemoryKiB uint32 `json:"argon2_memory_kib" yaml:"argon2_memory_kib"`
	Argon2Threads   uint8  `json:"argon2_threads" yaml:"argon2_threads"`
	AutoLockSeconds int    `json:"auto_lock_seconds" yaml:"auto_lock_seconds"`
	CredentialStore string `json:"credential_store" yaml:"credential_store"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `json:"default_format" yaml:"default_format"`
	Color         string `json:"color" yaml:"color"`
	Verbose       bool   `json:"verbose" yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file" yaml:"file"`
}

// Load reads configuration from the specified file. Fields the file omits
// keep their defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, wardenerr.WithDetails(wardenerr.ErrConfigNotFound, map[string]string{"path": path})
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, wardenerr.WithCause(wardenerr.ErrConfigInvalid, err)
	}
	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	if err := fileutil.EnsurePrivateDir(filepath.Dir(path)); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the config file path under home.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	switch {
	case c.Registry.Backend != RegistryFile && c.Registry.Backend != RegistryRemote:
		return invalid("registry.backend", c.Registry.Backend)
	case c.Registry.Backend == RegistryRemote && c.Registry.URL == "":
		return invalid("registry.url", "")
	case c.Security.CredentialStore != CredentialKeyring && c.Security.CredentialStore != CredentialMemory:
		return invalid("security.credential_store", c.Security.CredentialStore)
	case c.Security.AutoLockSeconds < 0:
		return invalid("security.auto_lock_seconds", "negative")
	case c.Auth.ChallengeTTLSeconds < 0:
		return invalid("auth.challenge_ttl_seconds", "negative")
	case c.Auth.Domain == "":
		return invalid("auth.domain", "")
	}
	if !c.VaultParams().Valid() {
		return invalid("security.argon2", "out of range")
	}
	for field, u := range map[string]string{
		"network.broadcast_url": c.Network.BroadcastURL,
		"auth.issuer_url":       c.Auth.IssuerURL,
		"registry.url":          c.Registry.URL,
	} {
		if err := ValidateEndpointURL(u); err != nil {
			return invalidURL(field, err)
		}
	}
	return nil
}

// HomeDir returns Home with a leading ~ expanded.
func (c *Config) HomeDir() string {
	return ExpandPath(c.Home)
}

// LogFile returns the log file path with a leading ~ expanded.
func (c *Config) LogFile() string {
	return ExpandPath(c.Logging.File)
}

// VaultParams returns the KDF cost for new key records.
func (c *Config) VaultParams() vault.Params {
	return vault.Params{
		Time:      c.Security.Argon2Time,
		MemoryKiB: c.Security.Argon2MemoryKiB,
		Threads:   c.Security.Argon2Threads,
	}
}

// AutoLock returns the idle time after which unlocked wallets lock; 0 disables it.
func (c *Config) AutoLock() time.Duration {
	return time.Duration(c.Security.AutoLockSeconds) * time.Second
}

// ChallengeTTL returns how long a login challenge stays valid.
func (c *Config) ChallengeTTL() time.Duration {
	return time.Duration(c.Auth.ChallengeTTLSeconds) * time.Second
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// DefaultHome returns the default warden home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warden"
	}
	return filepath.Join(home, ".warden")
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func invalidURL(field string, cause error) error {
	e := *wardenerr.ErrConfigInvalid
	e.Details = map[string]string{"field": field}
	e.Cause = cause
	return &e
}

func invalid(field, value string) error {
	return wardenerr.WithDetails(wardenerr.ErrConfigInvalid, map[string]string{"field": field, "value": value})
}
