package codec

import (
	"encoding/base64"
	"testing"
	"time"
)

func testEnrollmentRecord() Record {
	return EnrollmentPayload{
		TenantID:   "t1",
		StoreID:    "s1",
		DeviceType: "gate",
		Bearer:     "bearer-secret-value",
		ExpiresAt:  time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}.Record("v1", "cafebabe")
}

func testTicketRecord() Record {
	return TicketPayload{
		TenantID:  "t1",
		PackageID: "pkg-7",
		TicketID:  "tick-42",
		Bearer:    "ticket-bearer-value",
		ExpiresAt: time.Date(2026, 9, 1, 18, 30, 0, 0, time.UTC),
	}.Record("v1", "deadbeef")
}

func TestQRRoundTripEnrollment(t *testing.T) {
	rec := testEnrollmentRecord()

	payload, err := EncodeQR(rec)
	if err != nil {
		t.Fatalf("EncodeQR failed: %v", err)
	}

	got, err := DecodeQR(payload)
	if err != nil {
		t.Fatalf("DecodeQR failed: %v", err)
	}
	if got != rec {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}

	enrollment, err := got.Enrollment()
	if err != nil {
		t.Fatalf("Enrollment view failed: %v", err)
	}
	if enrollment.StoreID != "s1" || enrollment.DeviceType != "gate" {
		t.Fatalf("unexpected enrollment view: %+v", enrollment)
	}
	if _, err := got.Ticket(); err == nil {
		t.Fatal("expected kind mismatch converting enrollment to ticket view")
	}
}

func TestQRRoundTripTicket(t *testing.T) {
	rec := testTicketRecord()

	payload, err := EncodeQR(rec)
	if err != nil {
		t.Fatalf("EncodeQR failed: %v", err)
	}

	got, err := DecodeQR(payload)
	if err != nil {
		t.Fatalf("DecodeQR failed: %v", err)
	}
	if got != rec {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}
}

func TestQRExpirySignedAtWholeSeconds(t *testing.T) {
	payload := EnrollmentPayload{
		TenantID:   "t1",
		StoreID:    "s1",
		DeviceType: "gate",
		Bearer:     "b",
		ExpiresAt:  time.Date(2026, 9, 1, 12, 0, 0, 999999999, time.UTC),
	}
	rec := payload.Record("v1", "ff")
	if rec.ExpiresAt.Nanosecond() != 0 {
		t.Fatalf("expected truncated expiry, got %v", rec.ExpiresAt)
	}

	fields := payload.SignableFields()
	if fields[4] != "2026-09-01T12:00:00Z" {
		t.Fatalf("expected whole-second RFC3339 expiry in signable fields, got %q", fields[4])
	}
}

func TestDecodeQRRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not base64url!!",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"v":1,"k":"enroll","extra":"field"}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"v":1}`)),
	}
	for _, payload := range cases {
		if _, err := DecodeQR(payload); err == nil {
			t.Fatalf("expected decode failure for %q", payload)
		}
	}
}

func TestDecodeQRRejectsWrongVersionAndKind(t *testing.T) {
	rec := testEnrollmentRecord()

	rec.Version = 9
	if _, err := EncodeQR(rec); err == nil {
		t.Fatal("expected encode rejection of unknown format version")
	}

	rec = testEnrollmentRecord()
	rec.Kind = "mystery"
	if _, err := EncodeQR(rec); err == nil {
		t.Fatal("expected encode rejection of unknown kind")
	}
}

func TestDecodeQRRejectsMissingFields(t *testing.T) {
	for _, mutate := range []func(*Record){
		func(r *Record) { r.TenantID = "" },
		func(r *Record) { r.Scope1 = "" },
		func(r *Record) { r.Bearer = "" },
		func(r *Record) { r.KeyVersion = "" },
		func(r *Record) { r.Signature = "" },
	} {
		rec := testEnrollmentRecord()
		mutate(&rec)
		if _, err := EncodeQR(rec); err == nil {
			t.Fatalf("expected rejection of incomplete record %+v", rec)
		}
	}
}
