package tokengate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/venuekit/tokengate/codec"
	"github.com/venuekit/tokengate/internal"
	"github.com/venuekit/tokengate/token"
)

// GeneratePairing issues a single-use enrollment token scoped to one store
// and device type. The returned grant carries every presentation of the
// same signed payload: the raw bearer, the QR payload, the deep link, and
// the 5-digit short code.
//
// Requested TTLs above the configured ceiling are clamped, and the grant
// reports both the requested and the enforced lifetime so terminal UIs can
// display the truth instead of a countdown that never matched the server.
func (e *Engine) GeneratePairing(ctx context.Context, req PairingRequest) (*PairingGrant, error) {
	if e == nil || e.tokens == nil || e.signer == nil {
		return nil, ErrEngineNotReady
	}
	if req.TenantID == "" || req.StoreID == "" || req.DeviceType == "" {
		return nil, ErrInvalidRequest
	}
	if _, ok := e.config.Enrollment.Capabilities[req.DeviceType]; !ok {
		e.emitAudit(ctx, auditEventPairingIssued, false, "", req.TenantID, "", ErrUnknownDeviceType, func() map[string]string {
			return map[string]string{
				"device_type": req.DeviceType,
			}
		})
		return nil, ErrUnknownDeviceType
	}

	actor := actorFromContext(ctx)
	if err := e.checkLimit(ctx, actor, "pairing", e.config.RateLimit.PairingLimit, e.config.RateLimit.PairingWindow); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricPairingRateLimited)
			e.emitAudit(ctx, auditEventPairingRateLimited, false, "", req.TenantID, actor, ErrRateLimited, nil)
			e.emitRateLimit(ctx, "pairing", req.TenantID, func() map[string]string {
				return map[string]string{
					"store_id": req.StoreID,
				}
			})
		}
		return nil, err
	}

	if e.directory != nil {
		known, err := e.directory.TenantExists(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}
		if !known {
			e.emitAudit(ctx, auditEventPairingIssued, false, "", req.TenantID, actor, ErrUnknownTenant, nil)
			return nil, ErrUnknownTenant
		}
		known, err = e.directory.StoreExists(ctx, req.TenantID, req.StoreID)
		if err != nil {
			return nil, err
		}
		if !known {
			e.emitAudit(ctx, auditEventPairingIssued, false, "", req.TenantID, actor, ErrUnknownStore, func() map[string]string {
				return map[string]string{
					"store_id": req.StoreID,
				}
			})
			return nil, ErrUnknownStore
		}
	}

	effective := req.RequestedTTL
	if effective <= 0 || effective > e.config.Enrollment.MaxPairingTTL {
		effective = e.config.Enrollment.MaxPairingTTL
	}

	now := e.now()
	bearer, err := internal.NewBearerSecret()
	if err != nil {
		return nil, err
	}

	payload := codec.EnrollmentPayload{
		TenantID:   req.TenantID,
		StoreID:    req.StoreID,
		DeviceType: req.DeviceType,
		Bearer:     bearer,
		ExpiresAt:  now.Add(effective),
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
	var deepLink string
	if e.config.Enrollment.DeepLinkBase != "" {
		deepLink, err = codec.EncodeDeepLink(e.config.Enrollment.DeepLinkBase, rec)
		if err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	ttl := e.recordTTL(rec.ExpiresAt, now)

	var shortCode string
	for attempt := 0; attempt < e.config.Enrollment.ShortCodeRetries; attempt++ {
		code, err := codec.GenerateShortCode()
		if err != nil {
			return nil, err
		}

		t := &token.Token{
			ID:         id,
			Kind:       token.KindEnrollment,
			TenantID:   req.TenantID,
			StoreID:    req.StoreID,
			DeviceType: req.DeviceType,
			BearerHash: internal.HashBearer(bearer),
			ShortCode:  code,
			UsageLimit: 1,
			Status:     token.StatusUnused,
			IssuedAt:   now.Unix(),
			ExpiresAt:  rec.ExpiresAt.Unix(),
			KeyVersion: keyVersion,
			Signature:  sig,
		}

		err = e.tokens.Save(ctx, t, ttl)
		if errors.Is(err, token.ErrShortCodeCollision) {
			continue
		}
		if err != nil {
			return nil, mapStoreError(err, token.KindEnrollment)
		}
		shortCode = code
		break
	}
	if shortCode == "" {
		return nil, fmt.Errorf("%w: short code space exhausted", ErrStoreUnavailable)
	}

	if err := e.appendTrail(ctx, id, actor, auditActionIssue, auditResultPass, ReasonNone, map[string]string{
		"kind":     "enrollment",
		"store_id": req.StoreID,
	}); err != nil {
		return nil, err
	}

	e.metricInc(MetricPairingIssued)
	e.emitAudit(ctx, auditEventPairingIssued, true, id, req.TenantID, actor, nil, func() map[string]string {
		return map[string]string{
			"store_id":      req.StoreID,
			"device_type":   req.DeviceType,
			"effective_ttl": effective.String(),
		}
	})

	return &PairingGrant{
		TokenID:      id,
		Bearer:       bearer,
		ShortCode:    shortCode,
		QRPayload:    qr,
		DeepLink:     deepLink,
		RequestedTTL: req.RequestedTTL,
		EffectiveTTL: effective,
		ExpiresAt:    rec.ExpiresAt,
	}, nil
}

// EnrollDevice trades a live pairing token for a device identity and a
// signed device credential. A 5-digit presentation resolves through the
// short-code index; anything else is decoded as a QR payload or, failing
// that, taken as the raw bearer secret. A short-code miss is a miss; there
// is no fallback to recently issued tokens.
//
// The device-type scope is checked before consumption, so a mismatch
// reports SCOPE_MISMATCH and leaves the token unconsumed for the right
// device to claim.
func (e *Engine) EnrollDevice(ctx context.Context, req EnrollmentRequest) (*EnrollmentResult, error) {
	if e == nil || e.tokens == nil || e.signer == nil || e.registry == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	if req.Token == "" || req.DeviceType == "" {
		return nil, ErrInvalidRequest
	}

	actor := req.Fingerprint
	if actor == "" {
		actor = actorFromContext(ctx)
	}
	if err := e.checkLimit(ctx, actor, "enroll", e.config.RateLimit.EnrollLimit, e.config.RateLimit.EnrollWindow); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricEnrollRateLimited)
			e.emitAudit(ctx, auditEventEnrollRateLimited, false, "", "", actor, ErrRateLimited, nil)
			e.emitRateLimit(ctx, "enroll", "", nil)
		}
		return nil, err
	}

	t, bearer, err := e.resolvePairingToken(ctx, req.Token)
	if err != nil {
		e.metricInc(MetricEnrollFailure)
		if errors.Is(err, ErrSignatureInvalid) {
			e.metricInc(MetricSignatureInvalid)
		}
		e.emitAudit(ctx, auditEventEnrollFailure, false, "", "", actor, err, nil)
		return nil, err
	}

	now := e.now()

	// Raw-bearer presentations carry no signature of their own; the stored
	// signature is re-verified against the presented secret instead.
	if bearer != "" {
		fields := codec.EnrollmentPayload{
			TenantID:   t.TenantID,
			StoreID:    t.StoreID,
			DeviceType: t.DeviceType,
			Bearer:     bearer,
			ExpiresAt:  time.Unix(t.ExpiresAt, 0),
		}.SignableFields()
		if !e.signer.Verify(fields, t.KeyVersion, t.Signature) {
			e.metricInc(MetricEnrollFailure)
			e.metricInc(MetricSignatureInvalid)
			e.emitAudit(ctx, auditEventEnrollFailure, false, t.ID, t.TenantID, actor, ErrSignatureInvalid, nil)
			return nil, e.failEnroll(ctx, t.ID, actor, ErrSignatureInvalid)
		}
	}

	if stateErr := classifyForUse(t, now); stateErr != nil {
		e.metricInc(MetricEnrollFailure)
		e.emitAudit(ctx, auditEventEnrollFailure, false, t.ID, t.TenantID, actor, stateErr, nil)
		return nil, e.failEnroll(ctx, t.ID, actor, stateErr)
	}

	if req.DeviceType != t.DeviceType {
		e.metricInc(MetricEnrollFailure)
		e.metricInc(MetricEnrollScopeMismatch)
		e.emitAudit(ctx, auditEventEnrollFailure, false, t.ID, t.TenantID, actor, ErrScopeMismatch, func() map[string]string {
			return map[string]string{
				"token_device_type":     t.DeviceType,
				"presented_device_type": req.DeviceType,
			}
		})
		return nil, e.failEnroll(ctx, t.ID, actor, ErrScopeMismatch)
	}

	capabilities, ok := e.config.Enrollment.Capabilities[t.DeviceType]
	if !ok {
		e.metricInc(MetricEnrollFailure)
		e.emitAudit(ctx, auditEventEnrollFailure, false, t.ID, t.TenantID, actor, ErrUnknownDeviceType, nil)
		return nil, e.failEnroll(ctx, t.ID, actor, ErrUnknownDeviceType)
	}

	if _, err := e.tokens.Consume(ctx, t.ID, actor, now); err != nil {
		mapped := mapStoreError(err, token.KindEnrollment)
		e.metricInc(MetricEnrollFailure)
		e.emitAudit(ctx, auditEventEnrollFailure, false, t.ID, t.TenantID, actor, mapped, nil)
		if errors.Is(mapped, ErrStoreUnavailable) {
			return nil, mapped
		}
		return nil, e.failEnroll(ctx, t.ID, actor, mapped)
	}

	device, err := e.registry.CreateDevice(ctx, CreateDeviceInput{
		TenantID:     t.TenantID,
		StoreID:      t.StoreID,
		DeviceType:   t.DeviceType,
		Fingerprint:  req.Fingerprint,
		AppVersion:   req.AppVersion,
		Capabilities: capabilities,
	})
	if err != nil {
		e.metricInc(MetricEnrollFailure)
		e.emitAudit(ctx, auditEventEnrollFailure, false, t.ID, t.TenantID, actor, err, func() map[string]string {
			return map[string]string{
				"stage": "registry",
			}
		})
		if trailErr := e.appendTrail(ctx, t.ID, actor, auditActionEnroll, auditResultFail, ReasonNone, map[string]string{
			"stage": "registry",
		}); trailErr != nil {
			return nil, trailErr
		}
		return nil, err
	}

	deviceToken, err := e.credentials.Issue(device.DeviceID, t.TenantID, t.StoreID, t.DeviceType, capabilities, now)
	if err != nil {
		e.metricInc(MetricEnrollFailure)
		e.emitAudit(ctx, auditEventEnrollFailure, false, t.ID, t.TenantID, actor, err, func() map[string]string {
			return map[string]string{
				"stage": "credential",
			}
		})
		return nil, err
	}

	if err := e.appendTrail(ctx, t.ID, actor, auditActionEnroll, auditResultPass, ReasonNone, map[string]string{
		"device_id": device.DeviceID,
	}); err != nil {
		return nil, err
	}

	e.metricInc(MetricEnrollSuccess)
	e.emitAudit(ctx, auditEventEnrollSuccess, true, t.ID, t.TenantID, actor, nil, func() map[string]string {
		return map[string]string{
			"device_id":   device.DeviceID,
			"device_type": t.DeviceType,
		}
	})

	return &EnrollmentResult{
		DeviceID:      device.DeviceID,
		DeviceToken:   deviceToken,
		TenantID:      t.TenantID,
		StoreID:       t.StoreID,
		Capabilities:  capabilities,
		ServerTime:    now.UTC(),
		MinAppVersion: e.config.Enrollment.MinAppVersion,
	}, nil
}

// resolvePairingToken routes the presented value to the right index. The
// returned bearer is non-empty only for presentations that still need the
// stored signature re-verified against it.
func (e *Engine) resolvePairingToken(ctx context.Context, presented string) (*token.Token, string, error) {
	if codec.IsShortCode(presented) {
		t, err := e.tokens.LookupByShortCode(ctx, presented)
		if err != nil {
			return nil, "", mapStoreError(err, token.KindEnrollment)
		}
		if t.Kind != token.KindEnrollment {
			return nil, "", ErrTokenNotFound
		}
		return t, "", nil
	}

	bearer := presented
	verified := false
	if rec, err := codec.DecodeQR(presented); err == nil {
		if rec.Kind != codec.KindEnrollment {
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
		return nil, "", mapStoreError(err, token.KindEnrollment)
	}
	if t.Kind != token.KindEnrollment {
		return nil, "", ErrTokenNotFound
	}
	if verified {
		bearer = ""
	}
	return t, bearer, nil
}

// failEnroll records the failed attempt on the token's trail and returns
// the business error, unless the trail write itself fails.
func (e *Engine) failEnroll(ctx context.Context, tokenID, actor string, cause error) error {
	if err := e.appendTrail(ctx, tokenID, actor, auditActionEnroll, auditResultFail, ReasonForError(cause), nil); err != nil {
		return err
	}
	return cause
}
