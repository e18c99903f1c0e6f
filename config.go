package tokengate

import (
	"errors"
	"time"
)

// Config carries every tunable of the engine. Instances are configured
// during initialization and treated as immutable afterwards.
type Config struct {
	Enrollment EnrollmentConfig
	Redemption RedemptionConfig
	Credential CredentialConfig
	RateLimit  RateLimitConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Store      StoreConfig
}

/*
====================================
ENROLLMENT CONFIG
====================================
*/

// EnrollmentConfig governs pairing-token issuance and device enrollment.
type EnrollmentConfig struct {
	// MaxPairingTTL is the hard ceiling for requested pairing lifetimes.
	// Requests above it are clamped, never rejected, and the grant reports
	// both the requested and the effective value.
	MaxPairingTTL time.Duration

	// DeepLinkBase is the URL prefix for enrollment deep links, e.g.
	// "https://pair.example.com".
	DeepLinkBase string

	// Capabilities maps a device type to the capability set granted at
	// enrollment. A pairing request for a type absent from this table is
	// rejected at issuance.
	Capabilities map[string][]string

	// MinAppVersion is echoed to clients on successful enrollment.
	MinAppVersion string

	// ShortCodeRetries bounds regeneration attempts when a drawn short
	// code collides with a live one.
	ShortCodeRetries int
}

// RedemptionConfig governs ticket redemption at gates.
type RedemptionConfig struct {
	// DuplicateWindow is how long a (ticket, device) PASS is replayed
	// idempotently instead of charging quota again.
	DuplicateWindow time.Duration
}

// CredentialConfig configures the device credentials minted on successful
// enrollment.
type CredentialConfig struct {
	TTL        time.Duration
	Issuer     string
	KeyID      string
	SigningKey []byte
	// VerifyKeys holds superseded key versions that must keep verifying
	// until their credentials age out.
	VerifyKeys map[string][]byte
}

// RateLimitConfig carries the per-action fixed-window budgets. A limit of
// zero disables the corresponding limiter.
type RateLimitConfig struct {
	// FailOpen decides what happens when the limiter backend is down:
	// true lets traffic through unthrottled, false refuses with an
	// infrastructure error. Limiter failure never corrupts token state
	// either way.
	FailOpen bool

	PairingLimit  int
	PairingWindow time.Duration
	EnrollLimit   int
	EnrollWindow  time.Duration
	RedeemLimit   int
	RedeemWindow  time.Duration
}

// AuditConfig configures the async observability sink. The per-token audit
// trail in Redis is always written regardless of these settings.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// StoreConfig configures the Redis token store.
type StoreConfig struct {
	RedisPrefix string
	// Retention keeps expired records resolvable for probes and audit
	// reads before Redis drops them.
	Retention time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Callers must still set
// the credential signing key and the capability table before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Enrollment: EnrollmentConfig{
			MaxPairingTTL:    60 * time.Second,
			DeepLinkBase:     "",
			Capabilities:     nil,
			ShortCodeRetries: 5,
		},
		Redemption: RedemptionConfig{
			DuplicateWindow: 5 * time.Minute,
		},
		Credential: CredentialConfig{
			TTL:    24 * time.Hour,
			Issuer: "tokengate",
			KeyID:  "v1",
		},
		RateLimit: RateLimitConfig{
			FailOpen:      false,
			PairingLimit:  10,
			PairingWindow: time.Minute,
			EnrollLimit:   10,
			EnrollWindow:  time.Minute,
			RedeemLimit:   60,
			RedeemWindow:  time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Store: StoreConfig{
			RedisPrefix: "ct",
			Retention:   24 * time.Hour,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg

	out.Credential.SigningKey = cloneBytes(cfg.Credential.SigningKey)
	if cfg.Credential.VerifyKeys != nil {
		out.Credential.VerifyKeys = make(map[string][]byte, len(cfg.Credential.VerifyKeys))
		for kid, key := range cfg.Credential.VerifyKeys {
			out.Credential.VerifyKeys[kid] = cloneBytes(key)
		}
	}

	if cfg.Enrollment.Capabilities != nil {
		out.Enrollment.Capabilities = make(map[string][]string, len(cfg.Enrollment.Capabilities))
		for deviceType, caps := range cfg.Enrollment.Capabilities {
			out.Enrollment.Capabilities[deviceType] = append([]string(nil), caps...)
		}
	}

	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.Enrollment.MaxPairingTTL <= 0 {
		return errors.New("Enrollment MaxPairingTTL must be > 0")
	}
	if c.Enrollment.ShortCodeRetries <= 0 {
		return errors.New("Enrollment ShortCodeRetries must be > 0")
	}
	if len(c.Enrollment.Capabilities) == 0 {
		return errors.New("Enrollment Capabilities table must not be empty")
	}
	for deviceType, caps := range c.Enrollment.Capabilities {
		if deviceType == "" {
			return errors.New("Enrollment Capabilities contains empty device type")
		}
		if len(caps) == 0 {
			return errors.New("Enrollment Capabilities contains empty capability set")
		}
	}

	if c.Redemption.DuplicateWindow < 0 {
		return errors.New("Redemption DuplicateWindow must be >= 0")
	}

	if c.Credential.TTL <= 0 {
		return errors.New("Credential TTL must be > 0")
	}
	if c.Credential.KeyID == "" {
		return errors.New("Credential KeyID is required")
	}
	if len(c.Credential.SigningKey) < 32 {
		return errors.New("Credential SigningKey must be >= 256 bits")
	}

	if c.RateLimit.PairingLimit > 0 && c.RateLimit.PairingWindow <= 0 {
		return errors.New("RateLimit PairingWindow must be > 0 when PairingLimit is set")
	}
	if c.RateLimit.EnrollLimit > 0 && c.RateLimit.EnrollWindow <= 0 {
		return errors.New("RateLimit EnrollWindow must be > 0 when EnrollLimit is set")
	}
	if c.RateLimit.RedeemLimit > 0 && c.RateLimit.RedeemWindow <= 0 {
		return errors.New("RateLimit RedeemWindow must be > 0 when RedeemLimit is set")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Store.RedisPrefix == "" {
		return errors.New("Store RedisPrefix is required")
	}
	if c.Store.Retention < 0 {
		return errors.New("Store Retention must be >= 0")
	}

	return nil
}
