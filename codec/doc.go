// Package codec encodes and decodes capability tokens across their three
// presentations: QR payload (base64url, no padding), deep link URL, and the
// 5-digit short code.
//
// # Wire record
//
// All presentations carry the same [Record]: format version, token kind,
// tenant, two scope identifiers, bearer secret, expiry (RFC3339 UTC, whole
// seconds), signing key version, and the signature itself. Decoders are the
// exact inverse of encoders and fail closed: any parse error yields
// [ErrMalformedPayload], never a partially filled record.
//
// # Tagged payloads
//
// [EnrollmentPayload] and [TicketPayload] are the typed views of a record.
// Both satisfy [Signable], so the signed field order and delimiter are
// enforced by the type rather than by call-site convention.
package codec
