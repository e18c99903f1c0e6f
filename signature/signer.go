package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

const fieldDelimiter = "|"

// Signer produces and checks HMAC-SHA256 signatures over canonical field
// sequences.
type Signer struct {
	provider KeyProvider
}

// NewSigner creates a [Signer] backed by the given key provider.
func NewSigner(provider KeyProvider) (*Signer, error) {
	if provider == nil {
		return nil, errors.New("nil key provider")
	}
	return &Signer{provider: provider}, nil
}

// Sign joins fields with the fixed delimiter and returns the lowercase hex
// digest plus the version of the key that produced it.
func (s *Signer) Sign(fields []string) (sig string, keyVersion string, err error) {
	key, err := s.provider.Current()
	if err != nil {
		return "", "", err
	}

	mac := hmac.New(sha256.New, key.Secret)
	mac.Write([]byte(strings.Join(fields, fieldDelimiter)))
	return hex.EncodeToString(mac.Sum(nil)), key.Version, nil
}

// CurrentKeyVersion reports the version new signatures are produced with.
func (s *Signer) CurrentKeyVersion() (string, error) {
	key, err := s.provider.Current()
	if err != nil {
		return "", err
	}
	return key.Version, nil
}

// Verify recomputes the digest under the referenced key version and compares
// in constant time. It never panics and returns false on any mismatch,
// malformed signature, or unknown key version.
func (s *Signer) Verify(fields []string, keyVersion, sig string) bool {
	if s == nil || sig == "" {
		return false
	}

	provided, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil || len(provided) != sha256.Size {
		return false
	}

	key, err := s.provider.Lookup(keyVersion)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key.Secret)
	mac.Write([]byte(strings.Join(fields, fieldDelimiter)))
	return subtle.ConstantTimeCompare(mac.Sum(nil), provided) == 1
}
