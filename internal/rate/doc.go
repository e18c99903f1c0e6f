// Package rate provides the Redis-backed fixed-window counter used to
// throttle token issuance and consumption attempts.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// built as <prefix>:rl:<action>:<actor> so one actor gets an independent
// budget per action.
//
// # Availability
//
// The limiter is a collaborator, not a source of truth. When Redis is
// unreachable it reports ErrRedisUnavailable and the caller decides whether
// to fail open or closed; the limiter never falls back silently.
package rate
