package tokengate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/venuekit/tokengate/credential"
	"github.com/venuekit/tokengate/internal/rate"
	"github.com/venuekit/tokengate/signature"
	"github.com/venuekit/tokengate/token"
)

// Engine orchestrates pairing-token issuance, device enrollment, ticket
// issuance, and gate redemption over the Redis-backed token store.
type Engine struct {
	config      Config
	signer      *signature.Signer
	tokens      *token.Store
	limiter     *rate.Limiter
	credentials *credential.Manager
	registry    DeviceRegistry
	directory   Directory
	audit       *auditDispatcher
	metrics     *Metrics

	// clock is injectable for window and expiry tests; nil means time.Now.
	clock func() time.Time
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

// Close drains the audit dispatcher. The Redis client stays owned by the
// caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many observability events were discarded under
// buffer pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ValidateCredential parses and verifies a device credential issued by
// [Engine.EnrollDevice]. Verification is local; there is no Redis round
// trip, so it is safe on every request.
func (e *Engine) ValidateCredential(cred string) (*credential.Claims, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.credentials.Parse(cred)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return claims, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// recordTTL is the Redis lifetime of a token record: the validity window
// plus the retention tail that keeps lapsed records readable for probes and
// audit review.
func (e *Engine) recordTTL(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now) + e.config.Store.Retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// checkLimit counts one attempt against the (actor, action) budget.
// Returns ErrRateLimited when the budget is spent, ErrLimiterUnavailable
// when the backend is down and the deployment fails closed, nil otherwise.
func (e *Engine) checkLimit(ctx context.Context, actor, action string, limit int, window time.Duration) error {
	if e.limiter == nil || limit <= 0 {
		return nil
	}
	if actor == "" {
		actor = clientIPFromContext(ctx)
	}
	if actor == "" {
		actor = "unknown"
	}

	res, err := e.limiter.CheckAndIncrement(ctx, actor, action, limit, window)
	if err != nil {
		if e.config.RateLimit.FailOpen {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if !res.Allowed {
		return ErrRateLimited
	}
	return nil
}

// mapStoreError translates store sentinels into the public taxonomy. The
// token kind decides whether a spent quota reads as USED (single-use
// pairing tokens) or QUOTA_EXHAUSTED (multi-use tickets).
func mapStoreError(err error, kind token.Kind) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrNotFound):
		return ErrTokenNotFound
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrRevoked):
		return ErrTokenRevoked
	case errors.Is(err, token.ErrNotStarted):
		return ErrTicketNotStarted
	case errors.Is(err, token.ErrExhausted):
		if kind == token.KindTicket {
			return ErrQuotaExhausted
		}
		return ErrTokenUsed
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// classifyForUse reports why a token cannot be consumed right now, or nil.
// Consume re-checks all of this atomically; the pre-check exists so scope
// and duplicate handling can run against a stable classification without
// spending quota.
func classifyForUse(t *token.Token, now time.Time) error {
	switch t.Status {
	case token.StatusRevoked:
		return ErrTokenRevoked
	case token.StatusExpired:
		return ErrTokenExpired
	case token.StatusUsed:
		if t.Kind == token.KindTicket {
			return ErrQuotaExhausted
		}
		return ErrTokenUsed
	}

	if now.Unix() >= t.ExpiresAt {
		return ErrTokenExpired
	}
	if t.ValidFrom > 0 && now.Unix() < t.ValidFrom {
		return ErrTicketNotStarted
	}
	if t.UsageCount >= t.UsageLimit {
		if t.Kind == token.KindTicket {
			return ErrQuotaExhausted
		}
		return ErrTokenUsed
	}
	return nil
}
