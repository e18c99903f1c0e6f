package tokengate

import "errors"

var (
	// ErrTokenNotFound means the presented value resolved to no live token.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenUsed means the token's quota was already fully consumed.
	ErrTokenUsed = errors.New("token already used")
	// ErrTokenRevoked means the token was explicitly invalidated.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenExpired means the validity window lapsed before consumption.
	ErrTokenExpired = errors.New("token expired")
	// ErrTicketNotStarted means the ticket window has not opened yet.
	ErrTicketNotStarted = errors.New("ticket validity not started")
	// ErrQuotaExhausted means the ticket has no redemptions left.
	ErrQuotaExhausted = errors.New("ticket quota exhausted")
	// ErrScopeMismatch means the presented device type does not match the
	// token's scope. The token is not consumed.
	ErrScopeMismatch = errors.New("device type outside token scope")
	// ErrSignatureInvalid means the payload signature failed verification.
	ErrSignatureInvalid = errors.New("invalid token signature")
	// ErrRateLimited means the actor exceeded its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrPayloadMalformed means the presented value could not be decoded.
	ErrPayloadMalformed = errors.New("malformed token payload")
	// ErrInvalidRequest means a required request field is missing or out of
	// range.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnknownTenant means the directory does not know the tenant.
	ErrUnknownTenant = errors.New("unknown tenant")
	// ErrUnknownStore means the directory does not know the store within
	// the tenant.
	ErrUnknownStore = errors.New("unknown store")
	// ErrUnknownDeviceType means no capability set is configured for the
	// requested device type.
	ErrUnknownDeviceType = errors.New("unknown device type")
	// ErrStoreUnavailable is a true infrastructure failure: the token
	// store could not be reached. Callers retry with backoff; it is never
	// mapped into a business PASS/FAIL.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrLimiterUnavailable is returned when the rate limiter is down and
	// the deployment is configured to fail closed.
	ErrLimiterUnavailable = errors.New("rate limiter unavailable")
	// ErrEngineNotReady guards use of a partially constructed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
