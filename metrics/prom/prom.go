// Package prom exports memo registry and bounded cache signals to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/memocache/cache"
	"github.com/IvanBrykalov/memocache/memo"
)

// Adapter implements cache.Metrics for bounded caches.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	sizeEnt prometheus.Gauge
}

// New constructs a bounded-cache metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
//
// One Adapter may be shared by every cache a constructor builds; the size
// gauge then tracks the shard that changed last.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "cache_hits_total",
			Help:        "Bounded cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "cache_misses_total",
			Help:        "Bounded cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "cache_evictions_total",
				Help:        "Memoized results evicted, by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "cache_shard_entries",
			Help:        "Resident entries of the last updated shard",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt)
	return a
}

func (a *Adapter) Hit() { a.hits.Inc() }

func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

func (a *Adapter) Size(entries int) { a.sizeEnt.Set(float64(entries)) }

// RegistryAdapter implements memo.Metrics. Calls are labelled by identity
// name, so every instance of one closure shares a series.
type RegistryAdapter struct {
	calls      *prometheus.CounterVec
	clears     *prometheus.CounterVec
	identities *prometheus.GaugeVec
}

// NewRegistry constructs a memo registry metrics adapter; arguments as in New.
func NewRegistry(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *RegistryAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &RegistryAdapter{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "calls_total",
				Help:        "Memoized calls by function name and result (hit, miss, failure)",
				ConstLabels: constLabels,
			},
			[]string{"name", "result"},
		),
		clears: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "clears_total",
				Help:        "Caches emptied, by function name and reason",
				ConstLabels: constLabels,
			},
			[]string{"name", "reason"},
		),
		identities: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "identities",
				Help:        "Identities bound to a cache constructor, by kind",
				ConstLabels: constLabels,
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(a.calls, a.clears, a.identities)
	return a
}

func (a *RegistryAdapter) Hit(name string) { a.calls.WithLabelValues(name, "hit").Inc() }

func (a *RegistryAdapter) Miss(name string) { a.calls.WithLabelValues(name, "miss").Inc() }

func (a *RegistryAdapter) Failure(name string) { a.calls.WithLabelValues(name, "failure").Inc() }

func (a *RegistryAdapter) Clear(name string, reason memo.ClearReason) {
	a.clears.WithLabelValues(name, reason.String()).Inc()
}

func (a *RegistryAdapter) Identities(static, dynamic int) {
	a.identities.WithLabelValues(memo.Static.String()).Set(float64(static))
	a.identities.WithLabelValues(memo.Dynamic.String()).Set(float64(dynamic))
}

// Compile-time checks.
var (
	_ cache.Metrics = (*Adapter)(nil)
	_ memo.Metrics  = (*RegistryAdapter)(nil)
)
