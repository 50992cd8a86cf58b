// Package errors provides structured error handling for Warden.
// It defines the sentinel errors of the custody core, exit codes, and helpers
// for adding context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitAuth       = 3 // Authentication failed
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Permission denied
	ExitProtocol   = 6 // Signer or issuer protocol failure
)

// WardenError is the structured error type for Warden.
type WardenError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context, never secrets
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *WardenError) Error() string {
	msg := e.Message

	// Details are sorted for deterministic output
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *WardenError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for WardenError. Two errors match when their codes match.
func (e *WardenError) Is(target error) bool {
	var t *WardenError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// General errors.
var (
	ErrGeneral = &WardenError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &WardenError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrPermission = &WardenError{
		Code:     "PERMISSION_DENIED",
		Message:  "permission denied",
		ExitCode: ExitPermission,
	}

	ErrNotFound = &WardenError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrNotImplemented = &WardenError{
		Code:     "NOT_IMPLEMENTED",
		Message:  "operation not implemented",
		ExitCode: ExitGeneral,
	}
)

// Input validation errors.
var (
	ErrInvalidSeedPhrase = &WardenError{
		Code:     "INVALID_SEED_PHRASE",
		Message:  "invalid seed phrase",
		ExitCode: ExitInput,
	}

	ErrUnsupportedCurve = &WardenError{
		Code:     "UNSUPPORTED_CURVE",
		Message:  "unsupported curve",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &WardenError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrInvalidTransaction = &WardenError{
		Code:     "INVALID_TRANSACTION",
		Message:  "invalid transaction",
		ExitCode: ExitInput,
	}
)

// Wallet and session errors.
var (
	ErrWalletNotFound = &WardenError{
		Code:     "WALLET_NOT_FOUND",
		Message:  "wallet not found",
		ExitCode: ExitNotFound,
	}

	ErrWalletExists = &WardenError{
		Code:     "WALLET_EXISTS",
		Message:  "wallet already exists",
		ExitCode: ExitInput,
	}

	ErrWrongPassword = &WardenError{
		Code:     "WRONG_PASSWORD",
		Message:  "wrong password",
		ExitCode: ExitAuth,
	}

	ErrWalletLocked = &WardenError{
		Code:     "WALLET_LOCKED",
		Message:  "wallet is locked",
		ExitCode: ExitAuth,
	}

	ErrWalletBusy = &WardenError{
		Code:     "WALLET_BUSY",
		Message:  "another operation is in progress for this wallet",
		ExitCode: ExitGeneral,
	}
)

// Authentication protocol errors.
var (
	ErrNotAuthenticated = &WardenError{
		Code:     "NOT_AUTHENTICATED",
		Message:  "not authenticated",
		ExitCode: ExitAuth,
	}

	ErrAuthInProgress = &WardenError{
		Code:     "AUTH_IN_PROGRESS",
		Message:  "an authentication flow is already in progress",
		ExitCode: ExitGeneral,
	}

	ErrAlreadyAuthenticated = &WardenError{
		Code:     "ALREADY_AUTHENTICATED",
		Message:  "already authenticated",
		ExitCode: ExitInput,
	}

	ErrSignerUnavailable = &WardenError{
		Code:     "SIGNER_UNAVAILABLE",
		Message:  "no external signer attached",
		ExitCode: ExitProtocol,
	}

	ErrUserCancelled = &WardenError{
		Code:     "USER_CANCELLED",
		Message:  "request cancelled by user",
		ExitCode: ExitProtocol,
	}

	ErrNonceRejected = &WardenError{
		Code:     "NONCE_REJECTED",
		Message:  "signature verification failed",
		ExitCode: ExitAuth,
	}

	ErrChallengeExpired = &WardenError{
		Code:     "CHALLENGE_EXPIRED",
		Message:  "authentication challenge expired",
		ExitCode: ExitProtocol,
	}

	ErrAddressAlreadyLinked = &WardenError{
		Code:     "ADDRESS_ALREADY_LINKED",
		Message:  "address is already linked to another account",
		ExitCode: ExitProtocol,
	}

	ErrCredentialNotFound = &WardenError{
		Code:     "CREDENTIAL_NOT_FOUND",
		Message:  "no stored credential",
		ExitCode: ExitNotFound,
	}
)

// Transport errors.
var (
	ErrNetworkError = &WardenError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	ErrTxRejected = &WardenError{
		Code:     "TX_REJECTED",
		Message:  "transaction rejected by network",
		ExitCode: ExitGeneral,
	}
)

// Config errors.
var (
	ErrConfigNotFound = &WardenError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &WardenError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}
)

// New creates a new WardenError with the given code and message.
func New(code, message string) *WardenError {
	return &WardenError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var we *WardenError
	if errors.As(err, &we) {
		return &WardenError{
			Code:       we.Code,
			Message:    fmt.Sprintf("%s: %s", msg, we.Message),
			Details:    we.Details,
			Suggestion: we.Suggestion,
			Cause:      err,
			ExitCode:   we.ExitCode,
		}
	}

	return &WardenError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var we *WardenError
	if errors.As(err, &we) {
		return &WardenError{
			Code:       we.Code,
			Message:    we.Message,
			Details:    details,
			Suggestion: we.Suggestion,
			Cause:      we.Cause,
			ExitCode:   we.ExitCode,
		}
	}

	return &WardenError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var we *WardenError
	if errors.As(err, &we) {
		return &WardenError{
			Code:       we.Code,
			Message:    we.Message,
			Details:    we.Details,
			Suggestion: suggestion,
			Cause:      we.Cause,
			ExitCode:   we.ExitCode,
		}
	}

	return &WardenError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// WithCause attaches an underlying cause to a sentinel while keeping its code.
func WithCause(sentinel *WardenError, cause error) error {
	if cause == nil {
		return sentinel
	}
	return &WardenError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var we *WardenError
	if errors.As(err, &we) {
		return we.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var we *WardenError
	if errors.As(err, &we) {
		return we.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
