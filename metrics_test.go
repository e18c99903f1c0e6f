package tokengate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricRedeemPass)
	m.Add(MetricRedeemPass, 10)
	m.Observe(MetricRedeemLatency, 3*time.Millisecond)

	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("disabled metrics reported enabled")
	}
	if m.Value(MetricRedeemPass) != 0 {
		t.Fatal("disabled metrics recorded a value")
	}

	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricRedeemPass)
	if nilMetrics.Value(MetricRedeemPass) != 0 {
		t.Fatal("nil metrics recorded a value")
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricRedeemPass)
	m.Inc(MetricRedeemPass)
	m.Add(MetricTokensSwept, 5)

	if got := m.Value(MetricRedeemPass); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := m.Value(MetricTokensSwept); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := m.Value(MetricRedeemFail); got != 0 {
		t.Fatalf("untouched counter reads %d", got)
	}

	// Out-of-range IDs are ignored, not a panic.
	m.Inc(MetricID(10000))
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricRedeemPass)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricRedeemPass); got != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, got)
	}
}

func TestMetricsLatencyBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	samples := []time.Duration{
		2 * time.Millisecond,   // bucket 0
		5 * time.Millisecond,   // bucket 0, boundary is inclusive
		8 * time.Millisecond,   // bucket 1
		20 * time.Millisecond,  // bucket 2
		40 * time.Millisecond,  // bucket 3
		90 * time.Millisecond,  // bucket 4
		200 * time.Millisecond, // bucket 5
		400 * time.Millisecond, // bucket 6
		2 * time.Second,        // bucket 7
	}
	for _, d := range samples {
		m.Observe(MetricRedeemLatency, d)
	}

	// Only the redeem latency histogram accepts samples.
	m.Observe(MetricRedeemPass, time.Millisecond)

	snap := m.Snapshot()
	buckets, ok := snap.Histograms[MetricRedeemLatency]
	if !ok {
		t.Fatal("snapshot missing redeem latency histogram")
	}
	want := []uint64{2, 1, 1, 1, 1, 1, 1, 1}
	if len(buckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(buckets))
	}
	for i, w := range want {
		if buckets[i] != w {
			t.Fatalf("bucket %d: expected %d, got %d (all: %v)", i, w, buckets[i], buckets)
		}
	}
	if len(snap.Histograms) != 1 {
		t.Fatalf("unexpected extra histograms: %+v", snap.Histograms)
	}
}

func TestMetricsLatencyRequiresBothFlags(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: false})

	m.Observe(MetricRedeemLatency, time.Millisecond)

	snap := m.Snapshot()
	if len(snap.Histograms) != 0 {
		t.Fatalf("expected no histograms without the latency flag, got %+v", snap.Histograms)
	}
}

func TestEngineCountsRedemptionOutcomes(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	engine, _, _ := buildTestEngine(t, cfg)
	ctx := context.Background()

	grant := issueTicket(t, engine, 2, time.Time{}, time.Now().Add(time.Hour))

	for i := 0; i < 2; i++ {
		if result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: fmt.Sprintf("gate-%d", i)}); err != nil || !result.Passed {
			t.Fatalf("redeem %d: result=%+v err=%v", i, result, err)
		}
	}
	if result, err := engine.Redeem(ctx, RedemptionRequest{Payload: grant.QRPayload, DeviceID: "gate-9"}); err != nil || result.Passed {
		t.Fatalf("exhausted redeem: result=%+v err=%v", result, err)
	}

	snap := engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricTicketIssued:   1,
		MetricRedeemPass:     2,
		MetricRedeemFail:     1,
		MetricQuotaExhausted: 1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("counter %d: expected %d, got %d", id, want, got)
		}
	}
}
