// Package signature signs and verifies the canonical payload string of a
// capability token with HMAC-SHA256.
//
// # Canonical form
//
// The signable fields are joined with "|" in the order fixed by the payload
// type (tenant, scope, bearer, expiry, format version). The signature is the
// lowercase hex digest and always travels with the version of the key that
// produced it.
//
// # Key rotation
//
// Keys come from a [KeyProvider]. Multiple key versions are valid
// concurrently: Sign always uses the current key, Verify looks the version
// up, so rotating the current key never invalidates in-flight tokens.
package signature
