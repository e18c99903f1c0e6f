package codec

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// ShortCodeDigits is the fixed length of the human-enterable alias.
const ShortCodeDigits = 5

// GenerateShortCode draws exactly 5 ASCII digits from crypto/rand,
// independently of the bearer secret. Leading zeros are kept, so the value
// is zero-padded by construction.
func GenerateShortCode() (string, error) {
	var b strings.Builder
	b.Grow(ShortCodeDigits)

	max := big.NewInt(10)
	for i := 0; i < ShortCodeDigits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != ShortCodeDigits {
		return "", errors.New("invalid short code generation length")
	}
	return code, nil
}

// IsShortCode reports whether a presented value matches the short-code
// format. Enrollment uses this to route a presented value to the short-code
// index instead of the bearer index.
func IsShortCode(v string) bool {
	if len(v) != ShortCodeDigits {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}
