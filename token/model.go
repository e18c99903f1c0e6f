package token

import "time"

// Kind distinguishes the two capability-token families sharing this store.
type Kind uint8

const (
	// KindEnrollment is a single-use device pairing token.
	KindEnrollment Kind = iota + 1
	// KindTicket is a quota-limited entry ticket.
	KindTicket
)

// Status is the lifecycle state of a token.
type Status uint8

const (
	// StatusUnused means issued and never consumed.
	StatusUnused Status = iota
	// StatusActive means partially consumed (quota > 1 only).
	StatusActive
	// StatusUsed means the usage quota is exhausted. Terminal.
	StatusUsed
	// StatusExpired means the validity window lapsed. Terminal.
	StatusExpired
	// StatusRevoked means explicitly invalidated. Terminal.
	StatusRevoked
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusUsed || s == StatusExpired || s == StatusRevoked
}

func (s Status) String() string {
	switch s {
	case StatusUnused:
		return "UNUSED"
	case StatusActive:
		return "ACTIVE"
	case StatusUsed:
		return "USED"
	case StatusExpired:
		return "EXPIRED"
	case StatusRevoked:
		return "REVOKED"
	default:
		return "UNKNOWN"
	}
}

// Token is the persisted record of an issued capability token. The signed
// fields (tenant, scope, bearer hash source, expiry, key version) are
// immutable after issuance; consume/revoke only touch the consumption and
// status fields.
type Token struct {
	ID         string
	Kind       Kind
	TenantID   string
	StoreID    string
	DeviceType string
	PackageID  string
	BearerHash [32]byte
	ShortCode  string

	UsageLimit uint32
	UsageCount uint32
	Status     Status

	IssuedAt  int64
	ValidFrom int64
	ExpiresAt int64

	LastConsumedAt int64
	LastConsumedBy string

	KeyVersion string
	Signature  string
}

// Live reports whether the token is still consumable at the given instant.
func (t *Token) Live(now time.Time) bool {
	if t == nil || t.Status.Terminal() {
		return false
	}
	return now.Unix() < t.ExpiresAt
}

// Remaining returns the unconsumed quota.
func (t *Token) Remaining() uint32 {
	if t == nil || t.UsageCount >= t.UsageLimit {
		return 0
	}
	return t.UsageLimit - t.UsageCount
}

// AuditEntry is the append-only record of one consumption or lifecycle
// attempt. Entries are written for every attempt, successful or not, and
// are never mutated or deleted by this package.
type AuditEntry struct {
	ID        string            `json:"id"`
	TokenID   string            `json:"token_id"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Result    string            `json:"result"`
	Reason    string            `json:"reason,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
