package memo

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/memocache/cache"
	"github.com/IvanBrykalov/memocache/internal/util"
	"github.com/IvanBrykalov/memocache/policy"
	"github.com/IvanBrykalov/memocache/policy/lru"
	"github.com/IvanBrykalov/memocache/policy/twoq"
)

// Config is the file form of a registry setup.
//
//	cache:
//	  kind: bounded        # identity | value | bounded
//	  equality: value      # bounded only: identity | value
//	  capacity: 10000
//	  shards: 0
//	  policy: 2q           # lru | 2q
//	  ttl: 5m
//	metrics:
//	  namespace: memo
//	log:
//	  level: info
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// CacheConfig selects the default cache constructor.
type CacheConfig struct {
	Kind     string        `yaml:"kind"`
	Equality string        `yaml:"equality"`
	Capacity int           `yaml:"capacity"`
	Shards   int           `yaml:"shards"`
	Policy   string        `yaml:"policy"`
	TwoQ     TwoQConfig    `yaml:"twoq"`
	TTL      time.Duration `yaml:"ttl"`
}

// TwoQConfig sizes the 2Q queues per shard. Zero values pick 25% (in) and
// 50% (ghost) of the shard capacity.
type TwoQConfig struct {
	In    int `yaml:"in"`
	Ghost int `yaml:"ghost"`
}

// MetricsConfig names the Prometheus collectors.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// LogConfig configures the zap logger built by Build.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns an unbounded identity-keyed setup logging at info.
func DefaultConfig() Config {
	return Config{
		Cache:   CacheConfig{Kind: "identity", Policy: "lru"},
		Metrics: MetricsConfig{Namespace: "memo"},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("memo: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("memo: parse config: %w", err)
	}
	if _, err := cfg.Cache.constructor(nil); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Constructor builds the configured cache constructor. m receives the
// signals of bounded caches and may be nil.
func (c Config) Constructor(m cache.Metrics) (cache.Constructor, error) {
	return c.Cache.constructor(m)
}

// Options assembles registry options from the config.
func (c Config) Options(log *zap.Logger, m Metrics, cm cache.Metrics) (Options, error) {
	ctor, err := c.Constructor(cm)
	if err != nil {
		return Options{}, err
	}
	return Options{Constructor: ctor, Logger: log, Metrics: m}, nil
}

func (c CacheConfig) constructor(m cache.Metrics) (cache.Constructor, error) {
	switch strings.ToLower(c.Kind) {
	case "", "identity":
		return cache.Identity(), nil
	case "value":
		return cache.Value(), nil
	case "bounded":
	default:
		return nil, fmt.Errorf("memo: unknown cache kind %q", c.Kind)
	}

	if c.Capacity <= 0 {
		return nil, fmt.Errorf("memo: bounded cache needs capacity > 0, got %d", c.Capacity)
	}
	if c.TTL < 0 {
		return nil, fmt.Errorf("memo: negative ttl %s", c.TTL)
	}
	eq, err := parseEquality(c.Equality)
	if err != nil {
		return nil, err
	}
	pol, err := c.policy()
	if err != nil {
		return nil, err
	}
	return cache.Bounded(cache.Options{
		Capacity:   c.Capacity,
		Shards:     c.Shards,
		Policy:     pol,
		Equality:   eq,
		DefaultTTL: c.TTL,
		Metrics:    m,
	}), nil
}

func (c CacheConfig) policy() (policy.Policy, error) {
	switch strings.ToLower(c.Policy) {
	case "", "lru":
		return lru.New(), nil
	case "2q", "twoq":
		n := util.ShardCount(c.Shards)
		per := (c.Capacity + n - 1) / n
		in, ghost := c.TwoQ.In, c.TwoQ.Ghost
		if in <= 0 {
			in = per / 4
		}
		if ghost <= 0 {
			ghost = per / 2
		}
		return twoq.New(in, ghost), nil
	default:
		return nil, fmt.Errorf("memo: unknown eviction policy %q", c.Policy)
	}
}

func parseEquality(s string) (cache.Equality, error) {
	switch strings.ToLower(s) {
	case "", "identity":
		return cache.IdentityEquality, nil
	case "value":
		return cache.ValueEquality, nil
	default:
		return 0, fmt.Errorf("memo: unknown equality %q", s)
	}
}

// Build returns a zap logger at the configured level.
func (l LogConfig) Build() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("memo: log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
