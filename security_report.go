package tokengate

import "time"

// SecurityReport summarizes the security posture of a built engine so
// operators can verify a deployment without dumping secrets.
type SecurityReport struct {
	SigningAlgorithm  string
	SigningKeyVersion string

	CredentialTTL   time.Duration
	MaxPairingTTL   time.Duration
	DuplicateWindow time.Duration

	PairingRateLimitActive bool
	EnrollRateLimitActive  bool
	RedeemRateLimitActive  bool
	LimiterFailOpen        bool

	AuditEnabled     bool
	MetricsEnabled   bool
	DeepLinksEnabled bool
	RetentionTail    time.Duration
}

// SecurityReport reports the active configuration. Key material never
// appears in the report, only the active version identifier.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	keyVersion := ""
	if e.signer != nil {
		if v, err := e.signer.CurrentKeyVersion(); err == nil {
			keyVersion = v
		}
	}

	return SecurityReport{
		SigningAlgorithm:  "HMAC-SHA256",
		SigningKeyVersion: keyVersion,

		CredentialTTL:   e.config.Credential.TTL,
		MaxPairingTTL:   e.config.Enrollment.MaxPairingTTL,
		DuplicateWindow: e.config.Redemption.DuplicateWindow,

		PairingRateLimitActive: e.config.RateLimit.PairingLimit > 0,
		EnrollRateLimitActive:  e.config.RateLimit.EnrollLimit > 0,
		RedeemRateLimitActive:  e.config.RateLimit.RedeemLimit > 0,
		LimiterFailOpen:        e.config.RateLimit.FailOpen,

		AuditEnabled:     e.config.Audit.Enabled,
		MetricsEnabled:   e.config.Metrics.Enabled,
		DeepLinksEnabled: e.config.Enrollment.DeepLinkBase != "",
		RetentionTail:    e.config.Store.Retention,
	}
}
