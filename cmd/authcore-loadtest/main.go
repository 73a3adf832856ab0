// Command authcore-loadtest drives the engine's hot paths concurrently:
// password login, access token authentication and refresh. Users live in
// SQLite; sessions live in Redis (miniredis unless -redis-addr or
// REDIS_ADDR is set). Engine counters are read back through the
// OpenTelemetry exporter at the end of the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/otel"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/userstore/gormstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const loadPassword = "load-test-password"

type userState struct {
	email   string
	mu      sync.Mutex
	access  string
	refresh string
}

type options struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
	rotate      bool
}

func main() {
	var opts options
	flag.IntVar(&opts.users, "users", 200, "number of users to register and log in")
	flag.IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	flag.IntVar(&opts.ops, "ops", 20000, "operations per phase (authenticate, refresh)")
	flag.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	flag.BoolVar(&opts.rotate, "rotate", false, "renew the session and rotate the refresh token on (almost) every refresh")
	flag.Parse()

	if opts.users <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}
	if opts.redisAddr == "" {
		opts.redisAddr = os.Getenv("REDIS_ADDR")
	}

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	var client redis.UniversalClient
	if opts.redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		opts.redisAddr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", opts.redisAddr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", opts.redisAddr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{opts.redisAddr}})
	defer client.Close()

	dir, err := os.MkdirTemp("", "authcore-loadtest")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	users, err := gormstore.OpenSQLite(filepath.Join(dir, "users.db"))
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer users.Close()

	engine, err := buildEngine(client, users, opts.rotate)
	if err != nil {
		return err
	}
	defer engine.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())
	exporter, err := otel.New(provider.Meter("authcore-loadtest"), engine)
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}
	defer exporter.Close()

	// Each run gets its own address space so a shared Redis never collides.
	runID := rand.New(rand.NewSource(time.Now().UnixNano())).Int63()
	states := make([]*userState, opts.users)
	fmt.Fprintf(out, "registering %d users...\n", opts.users)
	seedStart := time.Now()
	for i := range states {
		s := &userState{email: fmt.Sprintf("load-%d-%d@example.com", runID, i)}
		if _, err := engine.Register(ctx, authcore.RegisterInput{Name: "Load", Email: s.email, Password: loadPassword}); err != nil {
			return fmt.Errorf("register %s: %w", s.email, err)
		}
		states[i] = s
	}
	fmt.Fprintf(out, "registered in %s\n", time.Since(seedStart).Round(time.Millisecond))

	loginStats := runPhase(len(states), opts.concurrency, func(i int, _ *rand.Rand) error {
		s := states[i]
		res, err := engine.Login(ctx, s.email, loadPassword, "authcore-loadtest")
		if err != nil {
			return err
		}
		s.access, s.refresh = res.Tokens.AccessToken, res.Tokens.RefreshToken
		return nil
	})

	authStats := runPhase(opts.ops, opts.concurrency, func(_ int, r *rand.Rand) error {
		s := states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.Authenticate(ctx, token)
		return err
	})

	refreshStats := runPhase(opts.ops, opts.concurrency, func(_ int, r *rand.Rand) error {
		s := states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := engine.Refresh(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access = res.AccessToken
		if res.Rotated {
			s.refresh = res.RefreshToken
		}
		return nil
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login", loginStats)
	printStats(out, "authenticate", authStats)
	printStats(out, "refresh", refreshStats)

	fmt.Fprintln(out, "---- engine counters ----")
	return printCounters(ctx, out, reader)
}

func buildEngine(client redis.UniversalClient, users authcore.UserStore, rotate bool) (*authcore.Engine, error) {
	cfg := authcore.DefaultConfig()
	cfg.Tokens.AccessSecret = "loadtest-access-secret-0123456789abcdef"
	cfg.Tokens.RefreshSecret = "loadtest-refresh-secret-0123456789abcdef"
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	if rotate {
		// Any session older than a millisecond is inside the renewal window.
		cfg.Tokens.RefreshLifetime = "1h"
		cfg.Session.RenewalThreshold = time.Hour - time.Millisecond
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(users).
		WithNotifier(notify.NotifierFunc(func(context.Context, notify.Message) error { return nil })).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return engine, nil
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

// runPhase calls op ops times spread over concurrency workers. op receives
// the operation index and a per-worker random source.
func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
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
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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

// printCounters collects once from reader and prints every non-zero counter
// point, one line per name and result.
func printCounters(ctx context.Context, out io.Writer, reader *sdkmetric.ManualReader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if dp.Value == 0 {
					continue
				}
				label := ""
				if v, ok := dp.Attributes.Value("result"); ok {
					label = "{result=" + v.AsString() + "}"
				}
				lines = append(lines, fmt.Sprintf("%s%s %d", m.Name, label, dp.Value))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	return nil
}
