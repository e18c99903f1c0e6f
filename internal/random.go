package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const bearerSecretSize = 32

// NewBearerSecret returns the high-entropy random component of a capability
// token as an opaque base64url string (no padding). Possession of this value
// is what grants the action; it is never persisted in plaintext.
func NewBearerSecret() (string, error) {
	var raw [bearerSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashBearer derives the storage key for a bearer secret. Only the hash is
// persisted so a store dump cannot be replayed at a gate.
func HashBearer(bearer string) [32]byte {
	return sha256.Sum256([]byte(bearer))
}

// NewCredentialSecret returns raw key material for a freshly provisioned
// device credential.
func NewCredentialSecret() ([]byte, error) {
	secret := make([]byte, bearerSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}
