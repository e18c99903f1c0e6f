package signature

import (
	"strings"
	"testing"
)

func newTestSigner(t *testing.T) (*Signer, *StaticKeyProvider) {
	t.Helper()

	provider, err := NewStaticKeyProvider("v1", []byte("test-signing-key-material-32-byte"))
	if err != nil {
		t.Fatalf("NewStaticKeyProvider failed: %v", err)
	}
	signer, err := NewSigner(provider)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	return signer, provider
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, _ := newTestSigner(t)

	fields := []string{"t1", "s1", "gate", "bearer-secret", "2026-01-01T00:00:00Z", "1"}
	sig, keyVersion, err := signer.Sign(fields)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if keyVersion != "v1" {
		t.Fatalf("expected key version v1, got %q", keyVersion)
	}
	if !signer.Verify(fields, keyVersion, sig) {
		t.Fatal("expected signature to verify")
	}
}

func TestVerifyRejectsTamperedField(t *testing.T) {
	signer, _ := newTestSigner(t)

	fields := []string{"t1", "s1", "gate", "bearer-secret", "2026-01-01T00:00:00Z", "1"}
	sig, keyVersion, err := signer.Sign(fields)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	for i := range fields {
		tampered := append([]string(nil), fields...)
		tampered[i] = tampered[i] + "x"
		if signer.Verify(tampered, keyVersion, sig) {
			t.Fatalf("expected verification failure after tampering field %d", i)
		}
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	signer, _ := newTestSigner(t)
	fields := []string{"t1", "s1"}

	for _, sig := range []string{"", "zz", "deadbeef", strings.Repeat("0", 63)} {
		if signer.Verify(fields, "v1", sig) {
			t.Fatalf("expected rejection of malformed signature %q", sig)
		}
	}
}

func TestVerifyRejectsUnknownKeyVersion(t *testing.T) {
	signer, _ := newTestSigner(t)

	fields := []string{"t1", "s1"}
	sig, _, err := signer.Sign(fields)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if signer.Verify(fields, "v99", sig) {
		t.Fatal("expected rejection of unknown key version")
	}
}

func TestRotationKeepsOldSignaturesVerifiable(t *testing.T) {
	signer, provider := newTestSigner(t)

	fields := []string{"t1", "s1", "gate"}
	oldSig, oldVersion, err := signer.Sign(fields)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if err := provider.Rotate("v2", []byte("rotated-signing-key-material-32b!")); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	newSig, newVersion, err := signer.Sign(fields)
	if err != nil {
		t.Fatalf("Sign after rotation failed: %v", err)
	}
	if newVersion != "v2" {
		t.Fatalf("expected new signatures under v2, got %q", newVersion)
	}
	if newSig == oldSig {
		t.Fatal("expected distinct signatures under distinct keys")
	}

	if !signer.Verify(fields, oldVersion, oldSig) {
		t.Fatal("expected pre-rotation signature to keep verifying")
	}
	if !signer.Verify(fields, newVersion, newSig) {
		t.Fatal("expected post-rotation signature to verify")
	}
}

func TestRetireRemovesKeyVersion(t *testing.T) {
	signer, provider := newTestSigner(t)

	fields := []string{"t1"}
	sig, _, err := signer.Sign(fields)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if err := provider.Retire("v1"); err == nil {
		t.Fatal("expected refusal to retire the current key")
	}

	if err := provider.Rotate("v2", []byte("rotated-signing-key-material-32b!")); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if err := provider.Retire("v1"); err != nil {
		t.Fatalf("Retire failed: %v", err)
	}
	if signer.Verify(fields, "v1", sig) {
		t.Fatal("expected retired key version to stop verifying")
	}
}

func TestCurrentKeyVersion(t *testing.T) {
	signer, provider := newTestSigner(t)

	v, err := signer.CurrentKeyVersion()
	if err != nil {
		t.Fatalf("CurrentKeyVersion failed: %v", err)
	}
	if v != "v1" {
		t.Fatalf("expected v1, got %q", v)
	}

	if err := provider.Rotate("v2", []byte("rotated-signing-key-material-32b!")); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if v, _ := signer.CurrentKeyVersion(); v != "v2" {
		t.Fatalf("expected v2 after rotation, got %q", v)
	}
}
