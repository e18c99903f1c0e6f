package signature

import (
	"errors"
	"sync"
)

var (
	// ErrNoCurrentKey is returned when the provider has no active signing key.
	ErrNoCurrentKey = errors.New("no current signing key")
	// ErrUnknownKeyVersion is returned when a signature references a key
	// version the provider does not hold.
	ErrUnknownKeyVersion = errors.New("unknown signing key version")
)

// Key is one version of HMAC key material.
type Key struct {
	Version string
	Secret  []byte
}

// KeyProvider supplies versioned HMAC keys. Implementations must treat
// returned secrets as read-only.
type KeyProvider interface {
	// Current returns the key new signatures are produced with.
	Current() (Key, error)
	// Lookup returns the key for a previously issued signature.
	Lookup(version string) (Key, error)
}

// StaticKeyProvider is an in-memory [KeyProvider] for deployments that
// rotate keys by config reload. Rotate keeps superseded versions resolvable
// so tokens signed before the rotation still verify.
type StaticKeyProvider struct {
	mu      sync.RWMutex
	current string
	keys    map[string][]byte
}

// NewStaticKeyProvider creates a provider with a single active key version.
func NewStaticKeyProvider(version string, secret []byte) (*StaticKeyProvider, error) {
	if version == "" {
		return nil, errors.New("empty key version")
	}
	if len(secret) == 0 {
		return nil, errors.New("empty key secret")
	}

	return &StaticKeyProvider{
		current: version,
		keys:    map[string][]byte{version: cloneSecret(secret)},
	}, nil
}

// Rotate installs a new current key. Prior versions remain valid for
// verification until Retire is called.
func (p *StaticKeyProvider) Rotate(version string, secret []byte) error {
	if version == "" {
		return errors.New("empty key version")
	}
	if len(secret) == 0 {
		return errors.New("empty key secret")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys[version] = cloneSecret(secret)
	p.current = version
	return nil
}

// Retire removes a superseded key version. Retiring the current version is
// rejected.
func (p *StaticKeyProvider) Retire(version string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if version == p.current {
		return errors.New("cannot retire current key version")
	}
	delete(p.keys, version)
	return nil
}

// Current implements [KeyProvider].
func (p *StaticKeyProvider) Current() (Key, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	secret, ok := p.keys[p.current]
	if !ok {
		return Key{}, ErrNoCurrentKey
	}
	return Key{Version: p.current, Secret: cloneSecret(secret)}, nil
}

// Lookup implements [KeyProvider].
func (p *StaticKeyProvider) Lookup(version string) (Key, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	secret, ok := p.keys[version]
	if !ok {
		return Key{}, ErrUnknownKeyVersion
	}
	return Key{Version: version, Secret: cloneSecret(secret)}, nil
}

func cloneSecret(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
