package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidCredential covers every parse or verification failure.
	ErrInvalidCredential = errors.New("invalid device credential")
)

// Config holds credential signing parameters.
type Config struct {
	TTL        time.Duration
	Issuer     string
	KeyID      string
	SigningKey []byte
	// VerifyKeys maps key version to key material. The signing key is
	// added automatically under KeyID.
	VerifyKeys map[string][]byte
}

// Claims is the credential payload presented by an enrolled device.
type Claims struct {
	DeviceID     string   `json:"did"`
	TenantID     string   `json:"tid"`
	StoreID      string   `json:"sid"`
	DeviceType   string   `json:"dt"`
	Capabilities []string `json:"cap,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and validates device credentials.
type Manager struct {
	config Config
	verify map[string][]byte
}

// NewManager validates the configuration and builds the verify-key set.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid credential TTL")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	if cfg.KeyID == "" {
		return nil, errors.New("credential key id required")
	}
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("credential signing key required")
	}

	verify := make(map[string][]byte, len(cfg.VerifyKeys)+1)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) == 0 {
			return nil, fmt.Errorf("empty verify key for kid %q", kid)
		}
		verify[kid] = key
	}
	verify[cfg.KeyID] = cfg.SigningKey

	return &Manager{config: cfg, verify: verify}, nil
}

// Issue mints a credential for a freshly enrolled device.
func (m *Manager) Issue(deviceID, tenantID, storeID, deviceType string, capabilities []string, now time.Time) (string, error) {
	claims := Claims{
		DeviceID:     deviceID,
		TenantID:     tenantID,
		StoreID:      storeID,
		DeviceType:   deviceType,
		Capabilities: capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = m.config.KeyID

	signed, err := token.SignedString(m.config.SigningKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Parse validates a presented credential against the verify-key set.
func (m *Manager) Parse(credential string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		key, ok := m.verify[kid]
		if !ok {
			return nil, errors.New("unknown credential key id")
		}
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredential
	}
	if claims.DeviceID == "" {
		return nil, ErrInvalidCredential
	}

	return claims, nil
}
