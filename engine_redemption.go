package tokengate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/venuekit/tokengate/codec"
	"github.com/venuekit/tokengate/internal"
	"github.com/venuekit/tokengate/token"
)

// IssueTicket mints a quota-limited entry ticket for a package. The bearer
// and QR payload returned are the only copies of the secret; the store
// keeps the hash.
func (e *Engine) IssueTicket(ctx context.Context, req TicketRequest) (*TicketGrant, error) {
	if e == nil || e.tokens == nil || e.signer == nil {
		return nil, ErrEngineNotReady
	}
	if req.TenantID == "" || req.PackageID == "" {
		return nil, ErrInvalidRequest
	}
	if req.Quota == 0 {
		return nil, ErrInvalidRequest
	}
	if req.ValidTo.IsZero() || !req.ValidTo.After(req.ValidFrom) {
		return nil, ErrInvalidRequest
	}

	actor := actorFromContext(ctx)

	if e.directory != nil {
		known, err := e.directory.TenantExists(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}
		if !known {
			e.emitAudit(ctx, auditEventTicketIssued, false, "", req.TenantID, actor, ErrUnknownTenant, nil)
			return nil, ErrUnknownTenant
		}
	}

	now := e.now()
	bearer, err := internal.NewBearerSecret()
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()

	payload := codec.TicketPayload{
		TenantID:  req.TenantID,
		PackageID: req.PackageID,
		TicketID:  id,
		Bearer:    bearer,
		ExpiresAt: req.ValidTo,
	}
	sig, keyVersion, err := e.signer.Sign(payload.SignableFields())
	if err != nil {
		return nil, err
	}
	rec := payload.Record(keyVersion, sig)

	qr, err := codec.EncodeQR(rec)
	if err != nil {
		return nil, err
	}

	var validFrom int64
	if !req.ValidFrom.IsZero() {
		validFrom = req.ValidFrom.Unix()
	}

	t := &token.Token{
		ID:         id,
		Kind:       token.KindTicket,
		TenantID:   req.TenantID,
		PackageID:  req.PackageID,
		BearerHash: internal.HashBearer(bearer),
		UsageLimit: req.Quota,
		Status:     token.StatusUnused,
		IssuedAt:   now.Unix(),
		ValidFrom:  validFrom,
		ExpiresAt:  rec.ExpiresAt.Unix(),
		KeyVersion: keyVersion,
		Signature:  sig,
	}
	if err := e.tokens.Save(ctx, t, e.recordTTL(rec.ExpiresAt, now)); err != nil {
		return nil, mapStoreError(err, token.KindTicket)
	}

	if err := e.appendTrail(ctx, id, actor, auditActionIssue, auditResultPass, ReasonNone, map[string]string{
		"kind":       "ticket",
		"package_id": req.PackageID,
	}); err != nil {
		return nil, err
	}

	e.metricInc(MetricTicketIssued)
	e.emitAudit(ctx, auditEventTicketIssued, true, id, req.TenantID, actor, nil, func() map[string]string {
		return map[string]string{
			"package_id": req.PackageID,
		}
	})

	return &TicketGrant{
		TicketID:  id,
		Bearer:    bearer,
		QRPayload: qr,
		Quota:     req.Quota,
		ValidFrom: req.ValidFrom,
		ValidTo:   rec.ExpiresAt,
	}, nil
}

// Redeem decides one gate presentation. Business refusals come back as a
// failed RedemptionResult with a stable reason code and a nil error; a
// non-nil error always means infrastructure trouble and the gate should
// retry, never wave the holder through.
//
// A repeat presentation by the same device within the duplicate window
// replays the original PASS without charging quota, so a flaky scanner
// cannot burn a group ticket.
func (e *Engine) Redeem(ctx context.Context, req RedemptionRequest) (RedemptionResult, error) {
	if e == nil || e.tokens == nil || e.signer == nil {
		return RedemptionResult{}, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricRedeemLatency, time.Since(start))
		}()
	}

	if req.Payload == "" || req.DeviceID == "" {
		return RedemptionResult{}, ErrInvalidRequest
	}
	device := req.DeviceID

	if err := e.checkLimit(ctx, device, "redeem", e.config.RateLimit.RedeemLimit, e.config.RateLimit.RedeemWindow); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricRedeemRateLimited)
			e.emitAudit(ctx, auditEventRedeemRateLimited, false, "", "", device, ErrRateLimited, nil)
			e.emitRateLimit(ctx, "redeem", "", func() map[string]string {
				return map[string]string{
					"device_id": device,
				}
			})
			return RedemptionResult{Passed: false, Reason: ReasonRateLimited}, nil
		}
		return RedemptionResult{}, err
	}

	t, bearer, err := e.resolveTicket(ctx, req.Payload)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return RedemptionResult{}, err
		}
		e.metricInc(MetricRedeemFail)
		if errors.Is(err, ErrSignatureInvalid) {
			e.metricInc(MetricSignatureInvalid)
		}
		e.emitAudit(ctx, auditEventRedeemFail, false, "", "", device, err, nil)
		return RedemptionResult{Passed: false, Reason: ReasonForError(err)}, nil
	}

	now := e.now()

	if bearer != "" {
		fields := codec.TicketPayload{
			TenantID:  t.TenantID,
			PackageID: t.PackageID,
			TicketID:  t.ID,
			Bearer:    bearer,
			ExpiresAt: time.Unix(t.ExpiresAt, 0),
		}.SignableFields()
		if !e.signer.Verify(fields, t.KeyVersion, t.Signature) {
			e.metricInc(MetricSignatureInvalid)
			return e.failRedeem(ctx, t, device, ErrSignatureInvalid)
		}
	}

	if t.Status == token.StatusRevoked {
		return e.failRedeem(ctx, t, device, ErrTokenRevoked)
	}
	if now.Unix() >= t.ExpiresAt {
		return e.failRedeem(ctx, t, device, ErrTokenExpired)
	}
	if t.ValidFrom > 0 && now.Unix() < t.ValidFrom {
		return e.failRedeem(ctx, t, device, ErrTicketNotStarted)
	}

	// Duplicate suppression outranks the quota check: the device that spent
	// the last use must see its own PASS again, not QUOTA_EXHAUSTED.
	remaining, seen, err := e.tokens.CheckDuplicate(ctx, t.ID, device)
	if err != nil {
		return RedemptionResult{}, mapStoreError(err, token.KindTicket)
	}
	if seen {
		if err := e.appendTrail(ctx, t.ID, device, auditActionRedeem, auditResultPass, ReasonNone, map[string]string{
			"duplicate": "true",
		}); err != nil {
			return RedemptionResult{}, err
		}
		e.metricInc(MetricRedeemDuplicate)
		e.metricInc(MetricRedeemPass)
		e.emitAudit(ctx, auditEventRedeemPass, true, t.ID, t.TenantID, device, nil, func() map[string]string {
			return map[string]string{
				"duplicate": "true",
			}
		})
		return RedemptionResult{Passed: true, Remaining: remaining, TicketID: t.ID}, nil
	}

	if stateErr := classifyForUse(t, now); stateErr != nil {
		return e.failRedeem(ctx, t, device, stateErr)
	}

	consumed, err := e.tokens.Consume(ctx, t.ID, device, now)
	if err != nil {
		mapped := mapStoreError(err, token.KindTicket)
		if errors.Is(mapped, ErrStoreUnavailable) {
			return RedemptionResult{}, mapped
		}
		return e.failRedeem(ctx, t, device, mapped)
	}

	left := consumed.Remaining()
	if e.config.Redemption.DuplicateWindow > 0 {
		if err := e.tokens.MarkDuplicate(ctx, t.ID, device, left, e.config.Redemption.DuplicateWindow); err != nil {
			return RedemptionResult{}, mapStoreError(err, token.KindTicket)
		}
	}

	if err := e.appendTrail(ctx, t.ID, device, auditActionRedeem, auditResultPass, ReasonNone, map[string]string{
		"remaining": uintString(left),
	}); err != nil {
		return RedemptionResult{}, err
	}

	e.metricInc(MetricRedeemPass)
	e.emitAudit(ctx, auditEventRedeemPass, true, t.ID, t.TenantID, device, nil, func() map[string]string {
		return map[string]string{
			"remaining": uintString(left),
		}
	})

	return RedemptionResult{Passed: true, Remaining: left, TicketID: t.ID}, nil
}

// resolveTicket mirrors resolvePairingToken for the ticket family.
func (e *Engine) resolveTicket(ctx context.Context, presented string) (*token.Token, string, error) {
	bearer := presented
	verified := false

	if rec, err := codec.DecodeQR(presented); err == nil {
		if rec.Kind != codec.KindTicket {
			return nil, "", ErrTokenNotFound
		}
		if !e.signer.Verify(rec.SignableFields(), rec.KeyVersion, rec.Signature) {
			return nil, "", ErrSignatureInvalid
		}
		bearer = rec.Bearer
		verified = true
	}

	t, err := e.tokens.LookupByBearer(ctx, internal.HashBearer(bearer))
	if err != nil {
		return nil, "", mapStoreError(err, token.KindTicket)
	}
	if t.Kind != token.KindTicket {
		return nil, "", ErrTokenNotFound
	}
	if verified {
		bearer = ""
	}
	return t, bearer, nil
}

// failRedeem records the refusal on the ticket's trail and shapes the
// result. Every refusal of a known ticket leaves a trail entry; a trail
// write failure outranks the business outcome.
func (e *Engine) failRedeem(ctx context.Context, t *token.Token, device string, cause error) (RedemptionResult, error) {
	reason := ReasonForError(cause)

	if err := e.appendTrail(ctx, t.ID, device, auditActionRedeem, auditResultFail, reason, nil); err != nil {
		return RedemptionResult{}, err
	}

	e.metricInc(MetricRedeemFail)
	if errors.Is(cause, ErrQuotaExhausted) {
		e.metricInc(MetricQuotaExhausted)
	}
	e.emitAudit(ctx, auditEventRedeemFail, false, t.ID, t.TenantID, device, cause, nil)

	return RedemptionResult{Passed: false, Reason: reason, TicketID: t.ID}, nil
}

func uintString(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
