package tokengate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/venuekit/tokengate/codec"
)

func issueTicket(t *testing.T, engine *Engine, quota uint32, validFrom, validTo time.Time) *TicketGrant {
	t.Helper()

	grant, err := engine.IssueTicket(context.Background(), TicketRequest{
		TenantID:  "t1",
		PackageID: "family-day",
		Quota:     quota,
		ValidFrom: validFrom,
		ValidTo:   validTo,
	})
	if err != nil {
		t.Fatalf("IssueTicket failed: %v", err)
	}
	return grant
}

func TestIssueTicketValidation(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())
	ctx := context.Background()
	validTo := time.Now().Add(time.Hour)

	cases := []struct {
		name string
		req  TicketRequest
		want error
	}{
		{"missing tenant", TicketRequest{PackageID: "p", Quota: 1, ValidTo: validTo}, ErrInvalidRequest},
		{"missing package", TicketRequest{TenantID: "t1", Quota: 1, ValidTo: validTo}, ErrInvalidRequest},
		{"zero quota", TicketRequest{TenantID: "t1", PackageID: "p", ValidTo: validTo}, ErrInvalidRequest},
		{"no window end", TicketRequest{TenantID: "t1", PackageID: "p", Quota: 1}, ErrInvalidRequest},
		{"inverted window", TicketRequest{TenantID: "t1", PackageID: "p", Quota: 1, ValidFrom: validTo, ValidTo: validTo.Add(-time.Minute)}, ErrInvalidRequest},
		{"unknown tenant", TicketRequest{TenantID: "ghost", PackageID: "p", Quota: 1, ValidTo: validTo}, ErrUnknownTenant},
	}
	for _, tc := range cases {
		if _, err := engine.IssueTicket(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestRedeemQuotaProgression(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())
	ctx := context.Background()

	grant := issueTicket(t, engine, 4, time.Time{}, time.Now().Add(time.Hour))

	// Distinct devices so duplicate suppression stays out of the way.
	for i, want := range []uint32{3, 2, 1, 0} {
		result, err := engine.Redeem(ctx, RedemptionRequest{
			Payload:  grant.QRPayload,
			DeviceID: fmt.Sprintf("gate-%d", i),
		})
		if err != nil {
			t.Fatalf("redeem %d failed: %v", i+1, err)
		}
		if !result.Passed || result.Remaining != want {
			t.Fatalf("redeem %d: expected pass with %d remaining, got %+v", i+1, want, result)
		}
		if result.TicketID != grant.TicketID {
			t.Fatalf("redeem %d: wrong ticket id %q", i+1, result.TicketID)
		}
	}

	result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-late"})
	if err != nil {
		t.Fatalf("exhausted redeem errored: %v", err)
	}
	if result.Passed || result.Reason != ReasonQuotaExhausted {
		t.Fatalf("expected QUOTA_EXHAUSTED refusal, got %+v", result)
	}
}

func TestRedeemDuplicateReplaysPass(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())
	ctx := context.Background()

	grant := issueTicket(t, engine, 3, time.Time{}, time.Now().Add(time.Hour))

	first, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-1"})
	if err != nil {
		t.Fatalf("first redeem failed: %v", err)
	}
	if !first.Passed || first.Remaining != 2 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	replay, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-1"})
	if err != nil {
		t.Fatalf("replay redeem failed: %v", err)
	}
	if !replay.Passed || replay.Remaining != 2 {
		t.Fatalf("expected replayed pass with 2 remaining, got %+v", replay)
	}

	probe, err := engine.ProbeToken(ctx, grant.TicketID)
	if err != nil {
		t.Fatalf("ProbeToken failed: %v", err)
	}
	if probe.UsageCount != 1 {
		t.Fatalf("replay charged quota: usage count %d", probe.UsageCount)
	}
}

func TestRedeemLastUseReplaysOwnPass(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())
	ctx := context.Background()

	grant := issueTicket(t, engine, 1, time.Time{}, time.Now().Add(time.Hour))

	if result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-1"}); err != nil || !result.Passed {
		t.Fatalf("first redeem: result=%+v err=%v", result, err)
	}

	// The device that spent the final use sees its PASS again, not
	// QUOTA_EXHAUSTED.
	replay, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-1"})
	if err != nil {
		t.Fatalf("replay errored: %v", err)
	}
	if !replay.Passed || replay.Remaining != 0 {
		t.Fatalf("expected replayed final pass, got %+v", replay)
	}

	other, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-2"})
	if err != nil {
		t.Fatalf("other device redeem errored: %v", err)
	}
	if other.Passed || other.Reason != ReasonQuotaExhausted {
		t.Fatalf("expected QUOTA_EXHAUSTED for the other device, got %+v", other)
	}
}

func TestRedeemRevokedTicket(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())
	ctx := context.Background()

	grant := issueTicket(t, engine, 2, time.Time{}, time.Now().Add(time.Hour))
	if err := engine.RevokeToken(ctx, grant.TicketID); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-1"})
	if err != nil {
		t.Fatalf("redeem errored: %v", err)
	}
	if result.Passed || result.Reason != ReasonRevoked {
		t.Fatalf("expected REVOKED refusal, got %+v", result)
	}
}

func TestRedeemBeforeWindowOpens(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())
	ctx := context.Background()

	now := time.Now()
	grant := issueTicket(t, engine, 2, now.Add(time.Hour), now.Add(2*time.Hour))

	result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-1"})
	if err != nil {
		t.Fatalf("redeem errored: %v", err)
	}
	if result.Passed || result.Reason != ReasonNotStarted {
		t.Fatalf("expected NOT_STARTED refusal, got %+v", result)
	}

	probe, err := engine.ProbeToken(ctx, grant.TicketID)
	if err != nil {
		t.Fatalf("ProbeToken failed: %v", err)
	}
	if probe.UsageCount != 0 {
		t.Fatalf("early presentation charged quota: %+v", probe)
	}
}

func TestRedeemExpiredTicket(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())
	ctx := context.Background()

	now := time.Now()
	grant := issueTicket(t, engine, 2, time.Time{}, now.Add(time.Hour))

	setClock(engine, now.Add(time.Hour+time.Second))

	result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-1"})
	if err != nil {
		t.Fatalf("redeem errored: %v", err)
	}
	if result.Passed || result.Reason != ReasonExpired {
		t.Fatalf("expected EXPIRED refusal, got %+v", result)
	}
}

func TestRedeemUnknownPayload(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())

	result, err := engine.Redeem(context.Background(), RedemptionRequest{
		Payload:  "no-such-bearer",
		DeviceID: "gate-1",
	})
	if err != nil {
		t.Fatalf("redeem errored: %v", err)
	}
	if result.Passed || result.Reason != ReasonNotFound {
		t.Fatalf("expected NOT_FOUND refusal, got %+v", result)
	}
}

func TestRedeemTamperedQR(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())
	ctx := context.Background()

	grant := issueTicket(t, engine, 2, time.Time{}, time.Now().Add(time.Hour))

	rec, err := codec.DecodeQR(grant.QRPayload)
	if err != nil {
		t.Fatalf("DecodeQR failed: %v", err)
	}
	rec.TenantID = "evil"
	tampered, err := codec.EncodeQR(rec)
	if err != nil {
		t.Fatalf("EncodeQR failed: %v", err)
	}

	result, err := engine.Redeem(ctx, RedemptionRequest{Payload: tampered, DeviceID: "gate-1"})
	if err != nil {
		t.Fatalf("redeem errored: %v", err)
	}
	if result.Passed || result.Reason != ReasonInvalidSignature {
		t.Fatalf("expected INVALID_SIGNATURE refusal, got %+v", result)
	}
}

func TestRedeemRawBearer(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())
	ctx := context.Background()

	grant := issueTicket(t, engine, 2, time.Time{}, time.Now().Add(time.Hour))

	result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.Bearer, DeviceID: "gate-1"})
	if err != nil {
		t.Fatalf("redeem errored: %v", err)
	}
	if !result.Passed || result.Remaining != 1 {
		t.Fatalf("expected pass with 1 remaining, got %+v", result)
	}
}

func TestRedeemRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RedeemLimit = 1
	cfg.RateLimit.RedeemWindow = time.Minute
	engine, _, _ := buildTestEngine(t, cfg)
	ctx := context.Background()

	grant := issueTicket(t, engine, 5, time.Time{}, time.Now().Add(time.Hour))

	if result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-1"}); err != nil || !result.Passed {
		t.Fatalf("first redeem: result=%+v err=%v", result, err)
	}

	// The budget refusal is a business result, not an error: the gate shows
	// FAIL with a reason instead of retrying.
	result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-1"})
	if err != nil {
		t.Fatalf("rate limited redeem errored: %v", err)
	}
	if result.Passed || result.Reason != ReasonRateLimited {
		t.Fatalf("expected RATE_LIMITED refusal, got %+v", result)
	}

	// Another device still has budget.
	if result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-2"}); err != nil || !result.Passed {
		t.Fatalf("second device redeem: result=%+v err=%v", result, err)
	}
}

func TestRedeemFailsClosedWhenLimiterDown(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RedeemLimit = 5
	cfg.RateLimit.RedeemWindow = time.Minute
	cfg.RateLimit.FailOpen = false
	engine, _, mr := buildTestEngine(t, cfg)

	mr.Close()

	_, err := engine.Redeem(context.Background(), RedemptionRequest{Payload: "whatever", DeviceID: "gate-1"})
	if !errors.Is(err, ErrLimiterUnavailable) {
		t.Fatalf("expected ErrLimiterUnavailable, got %v", err)
	}
}

func TestRedeemStoreOutageIsAnError(t *testing.T) {
	engine, _, mr := buildTestEngine(t, testConfig())

	mr.Close()

	_, err := engine.Redeem(context.Background(), RedemptionRequest{Payload: "whatever", DeviceID: "gate-1"})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
