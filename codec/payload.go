package codec

import (
	"errors"
	"strconv"
	"time"
)

// FormatVersion is the current wire format version embedded in every
// encoded token and covered by its signature.
const FormatVersion = 1

// Token kinds as they appear on the wire.
const (
	KindEnrollment = "enroll"
	KindTicket     = "ticket"
)

var (
	// ErrMalformedPayload is returned for any undecodable presentation.
	ErrMalformedPayload = errors.New("malformed token payload")
	// ErrKindMismatch is returned when a record is converted to the wrong
	// payload variant.
	ErrKindMismatch = errors.New("token kind mismatch")
)

// Signable is satisfied by every payload variant. The returned fields are
// the exact sequence the signature engine signs, in fixed order.
type Signable interface {
	SignableFields() []string
}

// Record is the kind-agnostic wire form shared by QR and deep link
// presentations.
type Record struct {
	Version    int
	Kind       string
	TenantID   string
	Scope1     string
	Scope2     string
	Bearer     string
	ExpiresAt  time.Time
	KeyVersion string
	Signature  string
}

// SignableFields returns tenant, both scope ids, bearer, expiry as RFC3339
// UTC whole seconds, and the format version.
func (r Record) SignableFields() []string {
	return signableFields(r.TenantID, r.Scope1, r.Scope2, r.Bearer, r.ExpiresAt, r.Version)
}

// Enrollment converts the record to its typed enrollment view.
func (r Record) Enrollment() (EnrollmentPayload, error) {
	if r.Kind != KindEnrollment {
		return EnrollmentPayload{}, ErrKindMismatch
	}
	return EnrollmentPayload{
		TenantID:   r.TenantID,
		StoreID:    r.Scope1,
		DeviceType: r.Scope2,
		Bearer:     r.Bearer,
		ExpiresAt:  r.ExpiresAt,
	}, nil
}

// Ticket converts the record to its typed ticket view.
func (r Record) Ticket() (TicketPayload, error) {
	if r.Kind != KindTicket {
		return TicketPayload{}, ErrKindMismatch
	}
	return TicketPayload{
		TenantID:  r.TenantID,
		PackageID: r.Scope1,
		TicketID:  r.Scope2,
		Bearer:    r.Bearer,
		ExpiresAt: r.ExpiresAt,
	}, nil
}

// EnrollmentPayload is the immutable signed content of a pairing token.
type EnrollmentPayload struct {
	TenantID   string
	StoreID    string
	DeviceType string
	Bearer     string
	ExpiresAt  time.Time
}

// SignableFields implements [Signable].
func (p EnrollmentPayload) SignableFields() []string {
	return signableFields(p.TenantID, p.StoreID, p.DeviceType, p.Bearer, p.ExpiresAt, FormatVersion)
}

// Record attaches the signature produced over SignableFields and returns
// the wire form.
func (p EnrollmentPayload) Record(keyVersion, sig string) Record {
	return Record{
		Version:    FormatVersion,
		Kind:       KindEnrollment,
		TenantID:   p.TenantID,
		Scope1:     p.StoreID,
		Scope2:     p.DeviceType,
		Bearer:     p.Bearer,
		ExpiresAt:  normalizeExpiry(p.ExpiresAt),
		KeyVersion: keyVersion,
		Signature:  sig,
	}
}

// TicketPayload is the immutable signed content of an entry ticket.
type TicketPayload struct {
	TenantID  string
	PackageID string
	TicketID  string
	Bearer    string
	ExpiresAt time.Time
}

// SignableFields implements [Signable].
func (p TicketPayload) SignableFields() []string {
	return signableFields(p.TenantID, p.PackageID, p.TicketID, p.Bearer, p.ExpiresAt, FormatVersion)
}

// Record attaches the signature produced over SignableFields and returns
// the wire form.
func (p TicketPayload) Record(keyVersion, sig string) Record {
	return Record{
		Version:    FormatVersion,
		Kind:       KindTicket,
		TenantID:   p.TenantID,
		Scope1:     p.PackageID,
		Scope2:     p.TicketID,
		Bearer:     p.Bearer,
		ExpiresAt:  normalizeExpiry(p.ExpiresAt),
		KeyVersion: keyVersion,
		Signature:  sig,
	}
}

func signableFields(tenant, scope1, scope2, bearer string, expiresAt time.Time, version int) []string {
	return []string{
		tenant,
		scope1,
		scope2,
		bearer,
		normalizeExpiry(expiresAt).Format(time.RFC3339),
		strconv.Itoa(version),
	}
}

// Expiry is signed at whole-second precision; every presentation and every
// signature check must observe the same truncated value.
func normalizeExpiry(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
