package mnemonic_test

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/mnemonic"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const abandonPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// BIP39 vectors from https://github.com/trezor/python-mnemonic/blob/master/vectors.json
//
//nolint:gochecknoglobals // test vectors
var seedVectors = []struct {
	phrase string
	seed   string
}{
	{
		phrase: abandonPhrase,
		seed:   "c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04",
	},
	{
		phrase: "legal winner thank year wave sausage worth useful legal winner thank yellow",
		seed:   "2e8905819b8723fe2c1d161860e5ee1830318dbf49a83bd451cfb8440c28bd6fa457fe1296106559a3c80937a1c1069be3a3a5bd381ee6260e8d9739fce1f607",
	},
	{
		phrase: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art",
		seed:   "bda85446c68413707090a52022edd26a1c9462295029f2e60cd7c4f2bbd3097170af7a4d73245cafa9c3cca8d561a7c3de6f5d4a10be8ed2a5e608d68f92fcc8",
	},
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	for _, n := range []int{mnemonic.Words12, mnemonic.Words24} {
		t.Run(fmt.Sprintf("%d words", n), func(t *testing.T) {
			t.Parallel()
			phrase, err := mnemonic.Generate(n)
			require.NoError(t, err)
			assert.Equal(t, n, phrase.WordCount())
			require.NoError(t, mnemonic.Validate(phrase.Reveal()))
		})
	}
}

func TestGenerate_InvalidWordCount(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 11, 15, 18, 25} {
		_, err := mnemonic.Generate(n)
		require.ErrorIs(t, err, wardenerr.ErrInvalidSeedPhrase)
	}
}

func TestGenerate_Randomness(t *testing.T) {
	t.Parallel()
	a, err := mnemonic.Generate(12)
	require.NoError(t, err)
	b, err := mnemonic.Generate(12)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestParse_Vectors(t *testing.T) {
	t.Parallel()
	for _, tc := range seedVectors {
		t.Run(tc.phrase[:20], func(t *testing.T) {
			t.Parallel()
			phrase, err := mnemonic.Parse(tc.phrase)
			require.NoError(t, err)
			assert.Equal(t, tc.seed, hex.EncodeToString(phrase.Seed("TREZOR")))
		})
	}
}

func TestParse_Normalizes(t *testing.T) {
	t.Parallel()
	words := strings.Fields(abandonPhrase)

	var numbered strings.Builder
	for i, w := range words {
		fmt.Fprintf(&numbered, "%d. %s\n", i+1, strings.ToUpper(w))
	}

	inputs := []string{
		"  " + strings.Join(words, "   ") + "\n",
		strings.Join(words, ", "),
		numbered.String(),
		"- " + strings.Join(words, "\n- "),
	}
	for _, in := range inputs {
		phrase, err := mnemonic.Parse(in)
		require.NoError(t, err)
		assert.Equal(t, abandonPhrase, phrase.Reveal())
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too few words", "abandon abandon abandon"},
		{"thirteen words", abandonPhrase + " abandon"},
		{"bad checksum", strings.Repeat("abandon ", 11) + "abandon"},
		{"unknown word", strings.Replace(abandonPhrase, "about", "xyzzyq", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := mnemonic.Parse(tt.input)
			require.ErrorIs(t, err, wardenerr.ErrInvalidSeedPhrase)
		})
	}
}

func TestParse_TypoNeverInError(t *testing.T) {
	t.Parallel()
	input := strings.Replace(abandonPhrase, "about", "abuot", 1)

	_, err := mnemonic.Parse(input)
	require.ErrorIs(t, err, wardenerr.ErrInvalidSeedPhrase)
	assert.NotContains(t, err.Error(), "abuot")
	assert.NotContains(t, err.Error(), "abandon")

	var we *wardenerr.WardenError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "12", we.Details["invalid_words"])
	assert.Contains(t, we.Suggestion, "word 12")
}

func TestPhrase_StringHidesWords(t *testing.T) {
	t.Parallel()
	phrase, err := mnemonic.Parse(abandonPhrase)
	require.NoError(t, err)

	assert.Equal(t, "[seed phrase: 12 words]", fmt.Sprintf("%v", phrase))
	assert.NotContains(t, fmt.Sprintf("%s", phrase), "abandon")
}

func TestSeed_PassphraseMatters(t *testing.T) {
	t.Parallel()
	phrase, err := mnemonic.Parse(abandonPhrase)
	require.NoError(t, err)

	a := phrase.Seed("")
	b := phrase.Seed("TREZOR")
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestSuggestWord(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"abandon", "abandon"},
		{"ABANDON", "abandon"},
		{"abandn", "abandon"},
		{"zooo", "zoo"},
		{"qqqqqqqqqq", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, mnemonic.SuggestWord(tt.input), tt.input)
	}
}

func TestDetectTypos(t *testing.T) {
	t.Parallel()
	assert.Empty(t, mnemonic.DetectTypos(abandonPhrase))
	assert.Empty(t, mnemonic.DetectTypos(""))

	typos := mnemonic.DetectTypos("abandn abandon qqqqqqqqqq")
	require.Len(t, typos, 2)
	assert.Equal(t, 0, typos[0].Index)
	assert.Equal(t, "abandon", typos[0].Suggestion)
	assert.Equal(t, 1, typos[0].Distance)
	assert.Equal(t, 2, typos[1].Index)
	assert.Empty(t, typos[1].Suggestion)

	formatted := mnemonic.FormatTypoSuggestions(typos)
	assert.Equal(t, "word 1: did you mean 'abandon'?\nword 3 is not a BIP39 word", formatted)
}

func TestWordList(t *testing.T) {
	t.Parallel()
	assert.Len(t, mnemonic.WordList(), 2048)
	assert.True(t, mnemonic.IsValidWord("Zoo"))
	assert.False(t, mnemonic.IsValidWord("zooo"))
}
