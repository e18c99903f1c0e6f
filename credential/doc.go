// Package credential mints and validates the signed device credential
// returned by a successful enrollment.
//
// Credentials are HS256 JWTs. Verification keys are versioned (kid header
// plus a verify-key set) so signing keys rotate without invalidating
// credentials held by devices in the field, the same rotation discipline
// the signature package applies to capability tokens.
package credential
