package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	tokengate "github.com/venuekit/tokengate"
	"github.com/venuekit/tokengate/signature"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type ticketState struct {
	payload string
}

func main() {
	var (
		tickets     = flag.Int("tickets", 50000, "number of tickets to seed")
		quota       = flag.Uint("quota", 100000, "usage quota per seeded ticket")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (redeem + probe)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "ct", "token key prefix")
	)
	flag.Parse()

	if *tickets <= 0 || *concurrency <= 0 || *ops <= 0 || *quota == 0 {
		fmt.Fprintln(os.Stderr, "tickets, quota, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := buildEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]ticketState, *tickets)
	fmt.Printf("seeding %d tickets...\n", *tickets)
	startSeed := time.Now()
	now := time.Now()
	for i := 0; i < *tickets; i++ {
		grant, err := engine.IssueTicket(ctx, tokengate.TicketRequest{
			TenantID:  "load",
			PackageID: fmt.Sprintf("pkg-%d", i%16),
			Quota:     uint32(*quota),
			ValidFrom: now,
			ValidTo:   now.Add(24 * time.Hour),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = ticketState{payload: grant.QRPayload}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	redeemStats := runRedeemPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("redeem", redeemStats)
}

func buildEngine(client redis.UniversalClient, prefix string) (*tokengate.Engine, error) {
	keys, err := signature.NewStaticKeyProvider("v1", []byte(uuid.NewString()))
	if err != nil {
		return nil, err
	}

	cfg := tokengate.DefaultConfig()
	cfg.Store.RedisPrefix = prefix
	cfg.Credential.SigningKey = []byte(uuid.NewString() + uuid.NewString())
	cfg.Enrollment.Capabilities = map[string][]string{"gate": {"gate.redeem"}}
	// Throughput measurement, not policy enforcement. Limits and duplicate
	// suppression would turn the phase into a limiter benchmark.
	cfg.RateLimit.PairingLimit = 0
	cfg.RateLimit.EnrollLimit = 0
	cfg.RateLimit.RedeemLimit = 0
	cfg.Redemption.DuplicateWindow = 0

	return tokengate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithKeyProvider(keys).
		WithDeviceRegistry(noopRegistry{}).
		WithDirectory(openDirectory{}).
		Build()
}

func runRedeemPhase(ctx context.Context, engine *tokengate.Engine, states []ticketState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			device := fmt.Sprintf("gate-%d", worker)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				t0 := time.Now()
				result, err := engine.Redeem(ctx, tokengate.RedemptionRequest{
					Payload:  states[idx].payload,
					DeviceID: device,
				})
				d := time.Since(t0)
				if err != nil || !result.Passed {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

type noopRegistry struct{}

func (noopRegistry) CreateDevice(_ context.Context, input tokengate.CreateDeviceInput) (tokengate.DeviceRecord, error) {
	return tokengate.DeviceRecord{
		DeviceID:   uuid.NewString(),
		TenantID:   input.TenantID,
		StoreID:    input.StoreID,
		DeviceType: input.DeviceType,
	}, nil
}

type openDirectory struct{}

func (openDirectory) TenantExists(context.Context, string) (bool, error)  { return true, nil }
func (openDirectory) StoreExists(context.Context, string, string) (bool, error) { return true, nil }
