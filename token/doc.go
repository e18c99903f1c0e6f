// Package token persists capability tokens in Redis and owns their
// lifecycle state machine.
//
// # State machine
//
// UNUSED -> ACTIVE (first consume, quota > 1) -> USED (quota reached);
// UNUSED/ACTIVE -> EXPIRED (time elapsed) or REVOKED (explicit action).
// USED, EXPIRED, and REVOKED are terminal and never revert.
//
// # Concurrency discipline
//
// Consume and Revoke run under a Redis WATCH transaction retried on
// conflict: the record is re-read, re-checked, and conditionally rewritten
// in one MULTI/EXEC. Two consumers racing on a single-use token therefore
// never both succeed. Lookups by bearer or short code only ever return live
// (UNUSED/ACTIVE, unexpired) tokens; everything else is reported as not
// found so the lookup path cannot be used to probe token history. Probe is
// the separate diagnostic path that exposes the true status.
//
// # Key layout
//
//	<prefix>:tok:<id>          encoded record
//	<prefix>:bearer:<sha256>   bearer index -> token id
//	<prefix>:code:<digits>     short-code index -> token id (SET NX)
//	<prefix>:dup:<id>:<actor>  duplicate-suppression marker
//	<prefix>:audit:<id>        append-only audit trail (RPUSH)
package token
