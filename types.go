package tokengate

import (
	"context"
	"errors"
	"time"

	"github.com/venuekit/tokengate/token"
)

// TokenStatus re-exports the store's lifecycle status for diagnostic APIs.
type TokenStatus = token.Status

// Token statuses. Transitions are monotonic: UNUSED/ACTIVE may move to
// USED, EXPIRED, or REVOKED; terminal statuses never revert.
const (
	StatusUnused  = token.StatusUnused
	StatusActive  = token.StatusActive
	StatusUsed    = token.StatusUsed
	StatusExpired = token.StatusExpired
	StatusRevoked = token.StatusRevoked
)

// AuditEntry is the persisted, append-only record of a single attempt.
type AuditEntry = token.AuditEntry

// ReasonCode is the stable machine-readable classification of a business
// outcome. These are expected results, not errors: only infrastructure
// failure surfaces as a Go error without a reason.
type ReasonCode string

const (
	ReasonNone             ReasonCode = ""
	ReasonNotFound         ReasonCode = "NOT_FOUND"
	ReasonUsed             ReasonCode = "USED"
	ReasonRevoked          ReasonCode = "REVOKED"
	ReasonExpired          ReasonCode = "EXPIRED"
	ReasonNotStarted       ReasonCode = "NOT_STARTED"
	ReasonQuotaExhausted   ReasonCode = "QUOTA_EXHAUSTED"
	ReasonScopeMismatch    ReasonCode = "SCOPE_MISMATCH"
	ReasonInvalidSignature ReasonCode = "INVALID_SIGNATURE"
	ReasonRateLimited      ReasonCode = "RATE_LIMITED"
)

// ReasonForError maps a business sentinel to its wire reason code. Unmapped
// errors (infrastructure failures) yield ReasonNone.
func ReasonForError(err error) ReasonCode {
	switch {
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrPayloadMalformed):
		return ReasonNotFound
	case errors.Is(err, ErrTokenUsed):
		return ReasonUsed
	case errors.Is(err, ErrTokenRevoked):
		return ReasonRevoked
	case errors.Is(err, ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, ErrTicketNotStarted):
		return ReasonNotStarted
	case errors.Is(err, ErrQuotaExhausted):
		return ReasonQuotaExhausted
	case errors.Is(err, ErrScopeMismatch):
		return ReasonScopeMismatch
	case errors.Is(err, ErrSignatureInvalid):
		return ReasonInvalidSignature
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	default:
		return ReasonNone
	}
}

// DeviceRecord is the identity created by the registry collaborator when an
// enrollment succeeds.
type DeviceRecord struct {
	DeviceID    string
	TenantID    string
	StoreID     string
	DeviceType  string
	Fingerprint string
	CreatedAt   time.Time
}

// CreateDeviceInput is the input for [DeviceRegistry.CreateDevice].
type CreateDeviceInput struct {
	TenantID     string
	StoreID      string
	DeviceType   string
	Fingerprint  string
	AppVersion   string
	Capabilities []string
}

// DeviceRegistry is the identity collaborator: it owns device records and
// is the only party that assigns device IDs.
type DeviceRegistry interface {
	CreateDevice(ctx context.Context, input CreateDeviceInput) (DeviceRecord, error)
}

// Directory is the tenancy collaborator consulted at issuance time.
type Directory interface {
	TenantExists(ctx context.Context, tenantID string) (bool, error)
	StoreExists(ctx context.Context, tenantID, storeID string) (bool, error)
}

// PairingRequest asks for a single-use enrollment token scoped to one store
// and device type.
type PairingRequest struct {
	TenantID     string
	StoreID      string
	DeviceType   string
	RequestedTTL time.Duration
}

// PairingGrant is the issuance result. EffectiveTTL is what the engine
// actually enforces; RequestedTTL is echoed so callers can see when their
// request was clamped.
type PairingGrant struct {
	TokenID      string
	Bearer       string
	ShortCode    string
	QRPayload    string
	DeepLink     string
	RequestedTTL time.Duration
	EffectiveTTL time.Duration
	ExpiresAt    time.Time
}

// EnrollmentRequest presents a pairing token (raw bearer or 5-digit short
// code) together with the device self-description.
type EnrollmentRequest struct {
	Token       string
	DeviceType  string
	Fingerprint string
	AppVersion  string
}

// EnrollmentResult is returned on successful pairing. ServerTime lets the
// client correct clock drift before its first redemption.
type EnrollmentResult struct {
	DeviceID      string
	DeviceToken   string
	TenantID      string
	StoreID       string
	Capabilities  []string
	ServerTime    time.Time
	MinAppVersion string
}

// TicketRequest asks for a quota-limited entry ticket.
type TicketRequest struct {
	TenantID  string
	PackageID string
	Quota     uint32
	ValidFrom time.Time
	ValidTo   time.Time
}

// TicketGrant is the ticket issuance result.
type TicketGrant struct {
	TicketID  string
	Bearer    string
	QRPayload string
	Quota     uint32
	ValidFrom time.Time
	ValidTo   time.Time
}

// RedemptionRequest presents a scanned QR payload (or raw bearer) at a
// gate.
type RedemptionRequest struct {
	Payload  string
	DeviceID string
}

// RedemptionResult reports the gate decision. Passed with Remaining on
// success; otherwise Reason carries the stable failure classification.
type RedemptionResult struct {
	Passed    bool
	Reason    ReasonCode
	Remaining uint32
	TicketID  string
}
