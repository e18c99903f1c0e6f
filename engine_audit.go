package tokengate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/venuekit/tokengate/token"
)

const (
	auditEventPairingIssued      = "pairing_issued"
	auditEventPairingRateLimited = "pairing_rate_limited"
	auditEventEnrollSuccess      = "enroll_success"
	auditEventEnrollFailure      = "enroll_failure"
	auditEventEnrollRateLimited  = "enroll_rate_limited"
	auditEventTicketIssued       = "ticket_issued"
	auditEventRedeemPass         = "redeem_pass"
	auditEventRedeemFail         = "redeem_fail"
	auditEventRedeemRateLimited  = "redeem_rate_limited"
	auditEventTokenRevoked       = "token_revoked"
	auditEventSweepCompleted     = "sweep_completed"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// Persisted trail actions.
const (
	auditActionIssue  = "issue"
	auditActionEnroll = "enroll"
	auditActionRedeem = "redeem"
	auditActionRevoke = "revoke"
)

const (
	auditResultPass = "pass"
	auditResultFail = "fail"
)

// emitAudit hands an observability event to the async dispatcher. Metadata
// is built lazily so disabled audit costs nothing on the hot path.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	tokenID string,
	tenantID string,
	actor string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if actor == "" {
		actor = actorFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		TokenID:   tokenID,
		TenantID:  tenantID,
		Actor:     actor,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditReason(err); code != "" {
		event.Reason = code
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	tenantID string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", tenantID, "", ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

// appendTrail writes one entry to the token's persisted audit trail. Unlike
// the dispatcher this is synchronous and its failure is an infrastructure
// error: a gate decision without its trail entry is unreviewable.
func (e *Engine) appendTrail(ctx context.Context, tokenID, actor, action, result string, reason ReasonCode, metadata map[string]string) error {
	entry := &token.AuditEntry{
		ID:        uuid.NewString(),
		TokenID:   tokenID,
		Actor:     actor,
		Action:    action,
		Result:    result,
		Reason:    string(reason),
		Timestamp: e.now().UTC(),
		Metadata:  metadata,
	}
	if err := e.tokens.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func auditReason(err error) string {
	if err == nil {
		return ""
	}
	if reason := ReasonForError(err); reason != ReasonNone {
		return string(reason)
	}

	switch {
	case errors.Is(err, ErrUnknownTenant):
		return "unknown_tenant"
	case errors.Is(err, ErrUnknownStore):
		return "unknown_store"
	case errors.Is(err, ErrUnknownDeviceType):
		return "unknown_device_type"
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrLimiterUnavailable):
		return "backend_unavailable"
	default:
		return "internal_error"
	}
}
