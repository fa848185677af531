// Package security provides advisory strength analysis and secret
// generation for vault records.
package security

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Character set constants.
const (
	charsetLowercase = "abcdefghijklmnopqrstuvwxyz"
	charsetUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	charsetDigits    = "0123456789"
	charsetSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	// GeneratedSecretLength is the length of auto-generated secrets.
	GeneratedSecretLength = 32
)

// Strength represents the estimated strength tier of a secret.
type Strength int

const (
	// StrengthWeak indicates an insecure secret.
	StrengthWeak Strength = iota
	// StrengthFair indicates a minimally acceptable secret.
	StrengthFair
	// StrengthGood indicates a good secret.
	StrengthGood
	// StrengthStrong indicates a strong secret.
	StrengthStrong
)

// String returns a human-readable representation of the strength tier.
func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "Weak"
	case StrengthFair:
		return "Fair"
	case StrengthGood:
		return "Good"
	case StrengthStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Entropy tier boundaries in bits.
const (
	fairBits   = 36
	goodBits   = 60
	strongBits = 90
)

// EntropyBits returns a character-class entropy estimate: the alphabet size
// is the sum of the sizes of the character classes the secret draws from,
// and the estimate is len * log2(alphabet). This is advisory only and
// never affects whether a record is accepted.
func EntropyBits(secret string) float64 {
	if secret == "" {
		return 0
	}

	alphabet := 0
	if strings.ContainsAny(secret, charsetLowercase) {
		alphabet += len(charsetLowercase)
	}
	if strings.ContainsAny(secret, charsetUppercase) {
		alphabet += len(charsetUppercase)
	}
	if strings.ContainsAny(secret, charsetDigits) {
		alphabet += len(charsetDigits)
	}
	hasOther := false
	for _, r := range secret {
		if !strings.ContainsRune(charsetLowercase, r) &&
			!strings.ContainsRune(charsetUppercase, r) &&
			!strings.ContainsRune(charsetDigits, r) {
			hasOther = true
			break
		}
	}
	if hasOther {
		alphabet += len(charsetSymbols)
	}

	return float64(len(secret)) * math.Log2(float64(alphabet))
}

// Estimate maps the entropy estimate to a discrete tier for display.
func Estimate(secret string) Strength {
	bits := EntropyBits(secret)
	switch {
	case bits >= strongBits:
		return StrengthStrong
	case bits >= goodBits:
		return StrengthGood
	case bits >= fairBits:
		return StrengthFair
	default:
		return StrengthWeak
	}
}

// GenerateSecret produces a cryptographically secure random secret of the
// given length, drawing from all four character classes.
func GenerateSecret(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("security: secret length must be positive")
	}

	charset := charsetLowercase + charsetUppercase + charsetDigits + charsetSymbols
	charsetLen := big.NewInt(int64(len(charset)))
	secret := make([]byte, length)

	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("security: failed to generate random number: %w", err)
		}
		secret[i] = charset[idx.Int64()]
	}

	return string(secret), nil
}
