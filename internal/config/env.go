package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Environment variable names.
const (
	EnvHome            = "WARDEN_HOME"
	EnvIssuerURL       = "WARDEN_ISSUER_URL"
	EnvBroadcastURL    = "WARDEN_BROADCAST_URL"
	EnvRegistryURL     = "WARDEN_REGISTRY_URL"
	EnvOutputFormat    = "WARDEN_OUTPUT_FORMAT"
	EnvVerbose         = "WARDEN_VERBOSE"
	EnvLogLevel        = "WARDEN_LOG_LEVEL"
	EnvAutoLock        = "WARDEN_AUTO_LOCK"
	EnvCredentialStore = "WARDEN_CREDENTIAL_STORE"
	EnvNoColor         = "NO_COLOR"
)

// ErrInsecureURL indicates a plain-http endpoint on a non-loopback host.
var ErrInsecureURL = &wardenerr.WardenError{
	Code:       "INSECURE_URL",
	Message:    "endpoint must use https unless it is on localhost",
	Suggestion: "use an https:// URL",
	ExitCode:   wardenerr.ExitInput,
}

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvIssuerURL); v != "" {
		cfg.Auth.IssuerURL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvBroadcastURL); v != "" {
		cfg.Network.BroadcastURL = SanitizeURL(v)
	}

	// Setting a registry URL implies the remote backend.
	if v := os.Getenv(EnvRegistryURL); v != "" {
		cfg.Registry.URL = SanitizeURL(v)
		cfg.Registry.Backend = RegistryRemote
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// WARDEN_AUTO_LOCK is in seconds; 0 disables auto-lock
	if v := os.Getenv(EnvAutoLock); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			cfg.Security.AutoLockSeconds = secs
		}
	}

	if v := os.Getenv(EnvCredentialStore); v != "" {
		cfg.Security.CredentialStore = strings.ToLower(strings.TrimSpace(v))
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string by removing invalid characters and trimming whitespace.
// This is useful for cleaning user-provided endpoint URLs that may contain copy-paste artifacts.
func SanitizeURL(url string) string {
	return sanitize.URL(strings.TrimSpace(url))
}

// ValidateEndpointURL accepts an empty string, https URLs, and http URLs on a
// loopback host. Everything else is rejected.
func ValidateEndpointURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"url": raw})
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
		return wardenerr.WithDetails(ErrInsecureURL, map[string]string{"url": raw})
	}
	return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"url": raw})
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
