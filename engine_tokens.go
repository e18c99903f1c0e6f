package tokengate

import (
	"context"
	"errors"
	"time"

	"github.com/venuekit/tokengate/token"
)

// ProbeResult is the diagnostic view of a token. Unlike the redemption and
// enrollment paths it reports the true status, so support staff can tell a
// spent ticket from an expired one.
type ProbeResult struct {
	TokenID        string
	Kind           string
	TenantID       string
	Status         TokenStatus
	UsageLimit     uint32
	UsageCount     uint32
	ValidFrom      time.Time
	ExpiresAt      time.Time
	LastConsumedAt time.Time
	LastConsumedBy string
}

// RevokeToken invalidates a live token. Revoking an already revoked token
// succeeds without effect; USED and EXPIRED are refused because terminal
// states never relabel.
func (e *Engine) RevokeToken(ctx context.Context, tokenID string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	if tokenID == "" {
		return ErrInvalidRequest
	}

	actor := actorFromContext(ctx)
	now := e.now()

	t, err := e.tokens.Revoke(ctx, tokenID, now)
	if err != nil {
		if errors.Is(err, token.ErrTerminal) {
			// Name the terminal state the caller collided with.
			cause := ErrTokenUsed
			if probe, probeErr := e.tokens.GetByID(ctx, tokenID); probeErr == nil && probe.Status == token.StatusExpired {
				cause = ErrTokenExpired
			}
			e.emitAudit(ctx, auditEventTokenRevoked, false, tokenID, "", actor, cause, nil)
			return cause
		}
		mapped := mapStoreError(err, token.KindTicket)
		e.emitAudit(ctx, auditEventTokenRevoked, false, tokenID, "", actor, mapped, nil)
		return mapped
	}

	if err := e.appendTrail(ctx, tokenID, actor, auditActionRevoke, auditResultPass, ReasonNone, nil); err != nil {
		return err
	}

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, tokenID, t.TenantID, actor, nil, nil)
	return nil
}

// SweepExpired marks lapsed live tokens EXPIRED and returns how many were
// flipped. Lookups and Consume already enforce expiry on their own; the
// sweep keeps probes and reporting honest between presentations.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	swept, err := e.tokens.SweepExpired(ctx, e.now())
	if err != nil {
		return swept, mapStoreError(err, token.KindTicket)
	}

	if e.metrics != nil && swept > 0 {
		e.metrics.Add(MetricTokensSwept, uint64(swept))
	}
	e.emitAudit(ctx, auditEventSweepCompleted, true, "", "", "", nil, func() map[string]string {
		return map[string]string{
			"swept": uintString(uint32(swept)),
		}
	})
	return swept, nil
}

// ProbeToken returns the true state of a token by ID.
func (e *Engine) ProbeToken(ctx context.Context, tokenID string) (*ProbeResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if tokenID == "" {
		return nil, ErrInvalidRequest
	}

	t, err := e.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return nil, mapStoreError(err, token.KindTicket)
	}

	res := &ProbeResult{
		TokenID:        t.ID,
		TenantID:       t.TenantID,
		Status:         t.Status,
		UsageLimit:     t.UsageLimit,
		UsageCount:     t.UsageCount,
		ExpiresAt:      time.Unix(t.ExpiresAt, 0).UTC(),
		LastConsumedBy: t.LastConsumedBy,
	}
	switch t.Kind {
	case token.KindEnrollment:
		res.Kind = "enrollment"
	case token.KindTicket:
		res.Kind = "ticket"
	}
	if t.ValidFrom > 0 {
		res.ValidFrom = time.Unix(t.ValidFrom, 0).UTC()
	}
	if t.LastConsumedAt > 0 {
		res.LastConsumedAt = time.Unix(t.LastConsumedAt, 0).UTC()
	}

	// A lapsed record the sweep has not reached yet still probes as
	// EXPIRED.
	if !t.Status.Terminal() && e.now().Unix() >= t.ExpiresAt {
		res.Status = StatusExpired
	}

	return res, nil
}

// AuditTrail reads the append-only attempt history of a token.
func (e *Engine) AuditTrail(ctx context.Context, tokenID string) ([]AuditEntry, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if tokenID == "" {
		return nil, ErrInvalidRequest
	}

	entries, err := e.tokens.AuditTrail(ctx, tokenID)
	if err != nil {
		return nil, mapStoreError(err, token.KindTicket)
	}
	return entries, nil
}
