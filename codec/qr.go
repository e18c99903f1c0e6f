package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"time"
)

type qrRecord struct {
	Version   int    `json:"v"`
	Kind      string `json:"k"`
	TenantID  string `json:"t"`
	Scope1    string `json:"s1"`
	Scope2    string `json:"s2,omitempty"`
	Bearer    string `json:"b"`
	ExpiresAt string `json:"exp"`
	KeyID     string `json:"kid"`
	Signature string `json:"sig"`
}

// EncodeQR renders a record as the QR payload: base64url (no padding) of a
// compact JSON object.
func EncodeQR(rec Record) (string, error) {
	if err := validateRecord(rec); err != nil {
		return "", err
	}

	data, err := json.Marshal(qrRecord{
		Version:   rec.Version,
		Kind:      rec.Kind,
		TenantID:  rec.TenantID,
		Scope1:    rec.Scope1,
		Scope2:    rec.Scope2,
		Bearer:    rec.Bearer,
		ExpiresAt: normalizeExpiry(rec.ExpiresAt).Format(time.RFC3339),
		KeyID:     rec.KeyVersion,
		Signature: rec.Signature,
	})
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeQR is the exact inverse of [EncodeQR]. Any base64, JSON, or field
// error yields [ErrMalformedPayload].
func DecodeQR(payload string) (Record, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Record{}, ErrMalformedPayload
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var qr qrRecord
	if err := dec.Decode(&qr); err != nil {
		return Record{}, ErrMalformedPayload
	}

	expiresAt, err := time.Parse(time.RFC3339, qr.ExpiresAt)
	if err != nil {
		return Record{}, ErrMalformedPayload
	}

	rec := Record{
		Version:    qr.Version,
		Kind:       qr.Kind,
		TenantID:   qr.TenantID,
		Scope1:     qr.Scope1,
		Scope2:     qr.Scope2,
		Bearer:     qr.Bearer,
		ExpiresAt:  expiresAt.UTC(),
		KeyVersion: qr.KeyID,
		Signature:  qr.Signature,
	}
	if err := validateRecord(rec); err != nil {
		return Record{}, ErrMalformedPayload
	}

	return rec, nil
}

func validateRecord(rec Record) error {
	if rec.Version != FormatVersion {
		return ErrMalformedPayload
	}
	if rec.Kind != KindEnrollment && rec.Kind != KindTicket {
		return ErrMalformedPayload
	}
	if rec.TenantID == "" || rec.Scope1 == "" || rec.Bearer == "" {
		return ErrMalformedPayload
	}
	if rec.ExpiresAt.IsZero() {
		return ErrMalformedPayload
	}
	if rec.KeyVersion == "" || rec.Signature == "" {
		return ErrMalformedPayload
	}
	return nil
}
