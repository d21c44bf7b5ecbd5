// Command memobench runs a synthetic workload against memoized functions and
// closures and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/memocache/cache"
	"github.com/IvanBrykalov/memocache/memo"
	pmet "github.com/IvanBrykalov/memocache/metrics/prom"
)

// collatz is the memoized top-level function: steps to reach 1 from n.
func collatz(n uint64) int {
	steps := 0
	for n > 1 {
		if n%2 == 0 {
			n /= 2
		} else {
			n = 3*n + 1
		}
		steps++
	}
	return steps
}

// tenant builds one closure per tenant; each gets its own cache.
func tenant(r *memo.Registry, salt uint64) *memo.Func1[uint64, uint64] {
	return memo.Closure1(func(k uint64) uint64 {
		h := k ^ salt
		for i := 0; i < 64; i++ {
			h = h*0x9E3779B97F4A7C15 + 1
		}
		return h
	}, memo.WithRegistry(r), memo.WithName("memobench.tenant"))
}

func main() {
	// ---- Flags ----
	var (
		configPath = flag.String("config", "", "YAML config file (cache, metrics, log sections)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		tenants  = flag.Int("tenants", 8, "closure instances (dynamic identities)")
		closPct  = flag.Int("closures", 30, "percentage of calls going to closures [0..100]")
		clearPct = flag.Float64("clears", 0.01, "percentage of calls that empty a cache")

		keys  = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	cfg := memo.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = memo.LoadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	log, err := cfg.Log.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Info("pprof: serving", zap.String("addr", *pprofAddr))
			log.Warn("pprof server stopped", zap.Error(http.ListenAndServe(*pprofAddr, nil)))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	cm := pmet.New(nil, cfg.Metrics.Namespace, cfg.Metrics.Subsystem, nil)
	rm := pmet.NewRegistry(nil, cfg.Metrics.Namespace, cfg.Metrics.Subsystem, nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info("metrics: serving", zap.String("addr", *metricsAddr))
		log.Warn("metrics server stopped", zap.Error(http.ListenAndServe(*metricsAddr, nil)))
	}()

	// ---- Build registry ----
	opt, err := cfg.Options(log, rm, cm)
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	reg := memo.New(opt)

	static, err := memo.Static1(collatz, memo.WithRegistry(reg))
	if err != nil {
		log.Fatal("register", zap.Error(err))
	}
	closures := make([]*memo.Func1[uint64, uint64], max(*tenants, 1))
	for i := range closures {
		closures[i] = tenant(reg, uint64(i)+1)
	}

	// ---- Snapshot flags for goroutines ----
	workersN := max(*workers, 1)
	keysMax := uint64(max(*keys, 2) - 1)
	closPctVal := *closPct
	clearEvery := 0
	if *clearPct > 0 {
		clearEvery = int(100 / *clearPct)
	}

	// ---- Load generation ----
	var total, staticCalls, closureCalls, clears atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workersN; w++ {
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(*seed + int64(w)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)

			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}

				n := total.Add(1)
				k := localZipf.Uint64() + 1
				if clearEvery > 0 && localR.Intn(clearEvery) == 0 {
					target := any(static)
					if localR.Intn(2) == 0 {
						target = closures[localR.Intn(len(closures))]
					}
					if err := reg.EmptyCache(target); err != nil {
						return fmt.Errorf("empty cache (call %d): %w", n, err)
					}
					clears.Add(1)
					continue
				}
				if int(localR.Int31n(100)) < closPctVal {
					if _, err := closures[localR.Intn(len(closures))].Try(k); err != nil {
						return err
					}
					closureCalls.Add(1)
					continue
				}
				if _, err := static.Try(k); err != nil {
					return err
				}
				staticCalls.Add(1)
			}
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Fatal("workload", zap.Error(err))
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops := total.Load()
	st := reg.Stats()
	hits, misses := cacheCounters(reg, static)

	log.Info("done",
		zap.Duration("elapsed", elapsed),
		zap.Int("workers", workersN),
		zap.Int64("seed", *seed))
	fmt.Printf("ops=%d (%.0f ops/s)  static=%d  closures=%d  clears=%d\n",
		ops, float64(ops)/elapsed.Seconds(), staticCalls.Load(), closureCalls.Load(), clears.Load())
	fmt.Printf("identities: static=%d dynamic=%d  caches=%d  entries=%d\n",
		st.Static, st.Dynamic, st.Caches, st.Entries)
	if hits+misses > 0 {
		fmt.Printf("static cache: hits=%d misses=%d hit-rate=%.2f%%\n",
			hits, misses, float64(hits)/float64(hits+misses)*100)
	}
}

// cacheCounters reads the static function's own cache counters when its
// cache kind keeps them.
func cacheCounters(reg *memo.Registry, f *memo.Func1[uint64, int]) (hits, misses int64) {
	c := reg.GetOrCreateCache(f.Identity(), nil)
	if sr, ok := c.(cache.StatsReporter); ok {
		st := sr.Stats()
		return st.Hits, st.Misses
	}
	return 0, 0
}
