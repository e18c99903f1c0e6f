package internaldefs

import (
	tokengate "github.com/venuekit/tokengate"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   tokengate.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name.
type HistogramDef struct {
	ID   tokengate.MetricID
	Name string
	Help string
}

// CounterDefs is the shared counter catalog used by every exporter.
var CounterDefs = []CounterDef{
	{ID: tokengate.MetricPairingIssued, Name: "tokengate_pairing_issued_total", Help: "Pairing tokens issued."},
	{ID: tokengate.MetricPairingRateLimited, Name: "tokengate_pairing_rate_limited_total", Help: "Rate-limited pairing requests."},
	{ID: tokengate.MetricEnrollSuccess, Name: "tokengate_enroll_success_total", Help: "Completed device enrollments."},
	{ID: tokengate.MetricEnrollFailure, Name: "tokengate_enroll_failure_total", Help: "Rejected enrollment attempts."},
	{ID: tokengate.MetricEnrollScopeMismatch, Name: "tokengate_enroll_scope_mismatch_total", Help: "Enrollments rejected for device-type scope mismatch."},
	{ID: tokengate.MetricEnrollRateLimited, Name: "tokengate_enroll_rate_limited_total", Help: "Rate-limited enrollment attempts."},
	{ID: tokengate.MetricTicketIssued, Name: "tokengate_ticket_issued_total", Help: "Entry tickets issued."},
	{ID: tokengate.MetricRedeemPass, Name: "tokengate_redeem_pass_total", Help: "Gate decisions that admitted the holder."},
	{ID: tokengate.MetricRedeemFail, Name: "tokengate_redeem_fail_total", Help: "Gate decisions that refused the holder."},
	{ID: tokengate.MetricRedeemDuplicate, Name: "tokengate_redeem_duplicate_total", Help: "Idempotent replays within the duplicate suppression window."},
	{ID: tokengate.MetricRedeemRateLimited, Name: "tokengate_redeem_rate_limited_total", Help: "Rate-limited redemption attempts."},
	{ID: tokengate.MetricQuotaExhausted, Name: "tokengate_quota_exhausted_total", Help: "Redemption attempts against spent tickets."},
	{ID: tokengate.MetricSignatureInvalid, Name: "tokengate_signature_invalid_total", Help: "Presentations failing signature verification."},
	{ID: tokengate.MetricTokenRevoked, Name: "tokengate_token_revoked_total", Help: "Explicit token revocations."},
	{ID: tokengate.MetricTokensSwept, Name: "tokengate_tokens_swept_total", Help: "Lapsed tokens marked expired by the sweep."},
	{ID: tokengate.MetricRateLimitHit, Name: "tokengate_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs is the shared histogram catalog.
var HistogramDefs = []HistogramDef{
	{ID: tokengate.MetricRedeemLatency, Name: "tokengate_redeem_latency_seconds", Help: "Gate decision latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's fixed buckets, in
// seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds in instrument-name-safe form.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// both exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
