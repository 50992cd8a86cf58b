// Package mnemonic validates and generates BIP39 seed phrases.
//
// Every function here is pure: no logging, no storage. A Phrase is meant to
// live only as long as wallet creation takes.
package mnemonic

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/cosmos/go-bip39"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Supported phrase lengths.
const (
	Words12 = 12
	Words24 = 24
)

// MaxTypoDistance is the largest edit distance still offered as a suggestion.
const MaxTypoDistance = 2

//nolint:gochecknoglobals // compiled once
var (
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)
	bulletListRegex   = regexp.MustCompile(`(?m)^\s*[-*•]\s*`)
	wordIndex         = buildIndex(bip39.WordList)
)

// Phrase is a normalized seed phrase that passed wordlist and checksum checks.
type Phrase string

// String deliberately hides the words so a Phrase cannot leak through %v.
func (p Phrase) String() string {
	return "[seed phrase: " + strconv.Itoa(p.WordCount()) + " words]"
}

// Reveal returns the phrase text. Callers display it once at generation.
func (p Phrase) Reveal() string {
	return string(p)
}

// WordCount returns the number of words.
func (p Phrase) WordCount() int {
	return len(strings.Fields(string(p)))
}

// Seed returns the 64-byte BIP39 seed. The caller wipes it after use.
func (p Phrase) Seed(passphrase string) []byte {
	return bip39.NewSeed(string(p), passphrase)
}

// Generate creates a fresh phrase of 12 or 24 words.
func Generate(wordCount int) (Phrase, error) {
	var bitSize int
	switch wordCount {
	case Words12:
		bitSize = 128
	case Words24:
		bitSize = 256
	default:
		return "", wardenerr.WithDetails(wardenerr.ErrInvalidSeedPhrase, map[string]string{
			"word_count": strconv.Itoa(wordCount),
		})
	}

	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", wardenerr.Wrap(err, "generating entropy")
	}

	words, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", wardenerr.Wrap(err, "encoding mnemonic")
	}
	return Phrase(words), nil
}

// Parse normalizes input and checks word count, wordlist membership and the
// checksum. Typo suggestions are attached as error details; the phrase is not.
func Parse(input string) (Phrase, error) {
	normalized := Normalize(input)
	words := strings.Fields(normalized)

	if len(words) != Words12 && len(words) != Words24 {
		return "", wardenerr.WithSuggestion(
			wardenerr.WithDetails(wardenerr.ErrInvalidSeedPhrase, map[string]string{
				"word_count": strconv.Itoa(len(words)),
			}),
			"a seed phrase has 12 or 24 words",
		)
	}

	if typos := DetectTypos(normalized); len(typos) > 0 {
		return "", wardenerr.WithSuggestion(
			wardenerr.WithDetails(wardenerr.ErrInvalidSeedPhrase, typoDetails(typos)),
			FormatTypoSuggestions(typos),
		)
	}

	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return "", wardenerr.WithSuggestion(wardenerr.ErrInvalidSeedPhrase,
			"all words are valid but the checksum does not match; check the word order")
	}

	return Phrase(normalized), nil
}

// Validate reports whether input is an acceptable phrase.
func Validate(input string) error {
	_, err := Parse(input)
	return err
}

// Normalize lowercases input, strips list numbering and bullets, turns commas
// into spaces and collapses whitespace.
func Normalize(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = bulletListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// WordList returns the BIP39 English wordlist.
func WordList() []string {
	return bip39.WordList
}

// IsValidWord reports whether word is in the wordlist.
func IsValidWord(word string) bool {
	_, ok := wordIndex[strings.ToLower(word)]
	return ok
}

// TypoInfo describes one word that is not in the wordlist.
type TypoInfo struct {
	Index      int // 0-based position
	Word       string
	Suggestion string // empty when nothing is close enough
	Distance   int
}

// SuggestWord returns the nearest wordlist entry within MaxTypoDistance, or "".
func SuggestWord(input string) string {
	input = strings.ToLower(input)
	if IsValidWord(input) {
		return input
	}

	minDist := math.MaxInt
	var suggestion string
	for _, word := range bip39.WordList {
		if dist := levenshtein.ComputeDistance(input, word); dist < minDist {
			minDist = dist
			suggestion = word
		}
	}

	if minDist <= MaxTypoDistance {
		return suggestion
	}
	return ""
}

// DetectTypos lists words of input that are not in the wordlist.
func DetectTypos(input string) []TypoInfo {
	var typos []TypoInfo
	for i, word := range strings.Fields(Normalize(input)) {
		if IsValidWord(word) {
			continue
		}
		info := TypoInfo{Index: i, Word: word, Suggestion: SuggestWord(word)}
		if info.Suggestion != "" {
			info.Distance = levenshtein.ComputeDistance(word, info.Suggestion)
		}
		typos = append(typos, info)
	}
	return typos
}

// FormatTypoSuggestions renders typos for a human, one per line.
func FormatTypoSuggestions(typos []TypoInfo) string {
	var b strings.Builder
	for i, typo := range typos {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("word ")
		b.WriteString(strconv.Itoa(typo.Index + 1))
		if typo.Suggestion != "" {
			b.WriteString(": did you mean '")
			b.WriteString(typo.Suggestion)
			b.WriteString("'?")
		} else {
			b.WriteString(" is not a BIP39 word")
		}
	}
	return b.String()
}

// typoDetails names positions only. Words and suggestions are fragments of the
// secret and stay out of the error message.
func typoDetails(typos []TypoInfo) map[string]string {
	positions := make([]string, 0, len(typos))
	for _, typo := range typos {
		positions = append(positions, strconv.Itoa(typo.Index+1))
	}
	return map[string]string{"invalid_words": strings.Join(positions, ",")}
}

func buildIndex(words []string) map[string]struct{} {
	idx := make(map[string]struct{}, len(words))
	for _, w := range words {
		idx[w] = struct{}{}
	}
	return idx
}
