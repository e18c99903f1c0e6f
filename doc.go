// Package tokengate issues and redeems signed capability tokens for venue
// operations: single-use pairing tokens that enroll terminals and scanners
// at a store, and quota-limited entry tickets redeemed at gates.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// tokengate is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (PairingGrant, RedemptionResult,
// MetricsSnapshot, etc.). Wire codecs, signing, the Redis token store, and
// rate limiting live in sub-packages; device identity and tenancy stay
// behind the [DeviceRegistry] and [Directory] collaborator interfaces.
//
// # Decision contract
//
// Redeem is the hot path and the trust boundary. Possession of a token
// grants nothing until the signature verifies, the validity window holds,
// and the quota is spent atomically; concurrent presentations of the last
// use admit exactly one holder. Business refusals are results with stable
// reason codes, never Go errors; a Go error always means infrastructure
// trouble and must never be read as a PASS.
package tokengate
