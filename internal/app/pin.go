package app

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// DefaultPINAlphabet yields 10^6 codes at the default length.
const DefaultPINAlphabet = "0123456789"

// DefaultPINLength matches the six-box join screen.
const DefaultPINLength = 6

// PINGenerator draws uniformly random join codes from a fixed alphabet.
type PINGenerator struct {
	alphabet string
	length   int
}

// NewPINGenerator validates the alphabet and length. Letters are upper-cased so
// that generated PINs survive NormalizePIN.
func NewPINGenerator(alphabet string, length int) (PINGenerator, error) {
	if alphabet == "" {
		alphabet = DefaultPINAlphabet
	}
	if length <= 0 {
		length = DefaultPINLength
	}
	seen := make(map[rune]bool)
	var b strings.Builder
	for _, r := range strings.ToUpper(alphabet) {
		if r > 127 || r == ' ' {
			return PINGenerator{}, fmt.Errorf("pin alphabet must be printable ascii, got %q", r)
		}
		if !seen[r] {
			seen[r] = true
			b.WriteRune(r)
		}
	}
	if b.Len() < 2 {
		return PINGenerator{}, fmt.Errorf("pin alphabet needs at least 2 symbols")
	}
	return PINGenerator{alphabet: b.String(), length: length}, nil
}

// DefaultPINGenerator returns the six-digit numeric generator.
func DefaultPINGenerator() PINGenerator {
	return PINGenerator{alphabet: DefaultPINAlphabet, length: DefaultPINLength}
}

// Space is the number of distinct PINs the generator can produce.
func (g PINGenerator) Space() *big.Int {
	return new(big.Int).Exp(big.NewInt(int64(len(g.alphabet))), big.NewInt(int64(g.length)), nil)
}

// Generate returns a new random PIN.
func (g PINGenerator) Generate() (string, error) {
	code := make([]byte, g.length)
	size := big.NewInt(int64(len(g.alphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		code[i] = g.alphabet[n.Int64()]
	}
	return string(code), nil
}

// NormalizePIN makes PIN lookups case-insensitive.
func NormalizePIN(pin string) string {
	return strings.ToUpper(strings.TrimSpace(pin))
}
