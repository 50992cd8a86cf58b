// Package siwe implements the challenge-response login used to authenticate an
// externally held Ethereum account and to link further addresses to it. The
// challenge text follows EIP-4361 and is signed with EIP-191 personal_sign.
package siwe

import (
	"bufio"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mrz1836/warden/internal/keys"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Purpose tells the issuer what a signed challenge authorizes.
type Purpose string

// Challenge purposes.
const (
	PurposeLogin Purpose = "login"
	PurposeLink  Purpose = "link"
)

// MessageVersion is the only EIP-4361 version defined.
const MessageVersion = "1"

const (
	headerSuffix   = " wants you to sign in with your Ethereum account:"
	purposePrefix  = "urn:warden:"
	minNonceLength = 8
)

var nonceRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Challenge is the structured form of the message the signer is asked to sign.
// Purpose is carried as the single Resources entry.
type Challenge struct {
	Purpose        Purpose
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        uint64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time
}

// Validate checks the fields that Message and ParseMessage rely on.
func (c *Challenge) Validate() error {
	switch {
	case c.Purpose != PurposeLogin && c.Purpose != PurposeLink:
		return invalidChallenge("purpose")
	case c.Domain == "" || strings.ContainsAny(c.Domain, " \r\n"):
		return invalidChallenge("domain")
	case !keys.IsHexAddress(c.Address):
		return invalidChallenge("address")
	case strings.ContainsAny(c.Statement, "\r\n"):
		return invalidChallenge("statement")
	case c.Version != MessageVersion:
		return invalidChallenge("version")
	case len(c.Nonce) < minNonceLength || !nonceRegex.MatchString(c.Nonce):
		return invalidChallenge("nonce")
	case c.IssuedAt.IsZero():
		return invalidChallenge("issued_at")
	case !c.ExpirationTime.IsZero() && !c.ExpirationTime.After(c.IssuedAt):
		return invalidChallenge("expiration_time")
	}
	if u, err := url.Parse(c.URI); err != nil || u.Scheme == "" {
		return invalidChallenge("uri")
	}
	return nil
}

// Expired reports whether the challenge can no longer be submitted at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpirationTime.IsZero() && !now.Before(c.ExpirationTime)
}

// Message renders the canonical challenge text. The address is written in its
// EIP-55 form and timestamps in RFC 3339 UTC at second precision, so the same
// fields always produce the same bytes.
func (c *Challenge) Message() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(c.Domain + headerSuffix + "\n")
	b.WriteString(keys.ChecksumAddress(c.Address) + "\n\n")
	if c.Statement != "" {
		b.WriteString(c.Statement + "\n")
	}
	b.WriteString("\n")
	b.WriteString("URI: " + c.URI + "\n")
	b.WriteString("Version: " + c.Version + "\n")
	b.WriteString("Chain ID: " + strconv.FormatUint(c.ChainID, 10) + "\n")
	b.WriteString("Nonce: " + c.Nonce + "\n")
	b.WriteString("Issued At: " + formatTime(c.IssuedAt))
	if !c.ExpirationTime.IsZero() {
		b.WriteString("\nExpiration Time: " + formatTime(c.ExpirationTime))
	}
	b.WriteString("\nResources:\n- " + purposePrefix + string(c.Purpose))
	return b.String(), nil
}

// ParseMessage is the inverse of Message. Text that parses but would not be
// reproduced byte for byte by Message is rejected.
func ParseMessage(text string) (*Challenge, error) {
	lines := splitLines(text)
	p := &parser{lines: lines}

	c := &Challenge{}
	header := p.next()
	domain, ok := strings.CutSuffix(header, headerSuffix)
	if !ok {
		return nil, invalidChallenge("header")
	}
	c.Domain = domain
	c.Address = p.next()
	if p.next() != "" {
		return nil, invalidChallenge("address")
	}
	if line := p.peek(); line != "" {
		c.Statement = p.next()
	}
	if p.next() != "" {
		return nil, invalidChallenge("statement")
	}

	var err error
	c.URI = p.field("URI")
	c.Version = p.field("Version")
	if c.ChainID, err = strconv.ParseUint(p.field("Chain ID"), 10, 64); err != nil {
		return nil, invalidChallenge("chain_id")
	}
	c.Nonce = p.field("Nonce")
	if c.IssuedAt, err = time.Parse(time.RFC3339, p.field("Issued At")); err != nil {
		return nil, invalidChallenge("issued_at")
	}
	if strings.HasPrefix(p.peek(), "Expiration Time: ") {
		if c.ExpirationTime, err = time.Parse(time.RFC3339, p.field("Expiration Time")); err != nil {
			return nil, invalidChallenge("expiration_time")
		}
	}
	if p.next() != "Resources:" {
		return nil, invalidChallenge("resources")
	}
	resource, ok := strings.CutPrefix(p.next(), "- "+purposePrefix)
	if !ok {
		return nil, invalidChallenge("resources")
	}
	c.Purpose = Purpose(resource)
	if !p.done() {
		return nil, invalidChallenge("trailing")
	}

	canonical, err := c.Message()
	if err != nil {
		return nil, err
	}
	if canonical != text {
		return nil, invalidChallenge("encoding")
	}
	return c, nil
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) peek() string {
	if p.pos >= len(p.lines) {
		return ""
	}
	return p.lines[p.pos]
}

func (p *parser) next() string {
	line := p.peek()
	p.pos++
	return line
}

func (p *parser) done() bool {
	return p.pos >= len(p.lines)
}

// field returns the value of a "Name: value" line or "" when the line does
// not carry that name; Validate rejects the empty value afterwards.
func (p *parser) field(name string) string {
	value, ok := strings.CutPrefix(p.peek(), name+": ")
	if !ok {
		return ""
	}
	p.pos++
	return value
}

func splitLines(text string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func invalidChallenge(field string) error {
	return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"challenge": field})
}
