package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// minPasswordLength is the shortest password accepted for a new key record.
const minPasswordLength = 8

// Prompt seams. Tests replace these.
//
//nolint:gochecknoglobals // test seams
var (
	promptPasswordFn    = promptPassword
	promptNewPasswordFn = promptNewPassword
	promptPhraseFn      = promptPhrase
	promptConfirmFn     = promptConfirm
)

// out is a helper for CLI output that ignores write errors.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}

// promptPassword prompts for a password with hidden input.
// The caller wipes the returned bytes.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	password, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return password, nil
}

// promptNewPassword prompts for a new password with confirmation.
// The caller wipes the returned bytes.
func promptNewPassword() ([]byte, error) {
	password, err := promptPasswordFn("Enter encryption password: ")
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		wardencrypto.Wipe(password)
		return nil, wardenerr.WithSuggestion(wardenerr.ErrInvalidInput,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	confirm, err := promptPasswordFn("Confirm password: ")
	if err != nil {
		wardencrypto.Wipe(password)
		return nil, err
	}
	defer wardencrypto.Wipe(confirm)

	if string(password) != string(confirm) {
		wardencrypto.Wipe(password)
		return nil, wardenerr.WithSuggestion(wardenerr.ErrInvalidInput, "passwords do not match")
	}
	return password, nil
}

// promptPhrase reads a seed phrase. On a terminal the input is hidden;
// otherwise one line is read from stdin so phrases can be piped in.
func promptPhrase() (string, error) {
	if !term.IsTerminal(syscall.Stdin) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", wardenerr.WithSuggestion(wardenerr.ErrInvalidInput, "no seed phrase provided")
		}
		return strings.TrimSpace(line), nil
	}

	outln(os.Stderr, "Enter your seed phrase, all words on one line.")
	phrase, err := promptPasswordFn("Seed phrase: ")
	if err != nil {
		return "", err
	}
	defer wardencrypto.Wipe(phrase)
	return strings.TrimSpace(string(phrase)), nil
}

// promptConfirm asks a yes/no question; anything but y or yes is no.
func promptConfirm(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
