package memo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/IvanBrykalov/memocache/cache"
)

func TestParseConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	ctor, err := cfg.Constructor(nil)
	require.NoError(t, err)
	assert.Equal(t, cache.Describe(cache.Identity()), cache.Describe(ctor))
}

func TestParseConfig_Bounded(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(`
cache:
  kind: bounded
  equality: value
  capacity: 1024
  shards: 4
  policy: 2q
  ttl: 30s
metrics:
  namespace: app
log:
  level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "app", cfg.Metrics.Namespace)

	ctor, err := cfg.Constructor(nil)
	require.NoError(t, err)
	assert.Equal(t,
		"bounded(policy=2q(in=64,ghost=128),capacity=1024,shards=4,ttl=30s,equality=value)",
		ctor.Descriptor())

	opt, err := cfg.Options(nil, nil, nil)
	require.NoError(t, err)
	r := New(opt)
	c := r.GetOrCreateCache(StaticID{Symbol: "cfg", Signature: "func()"}, nil)
	_, err = c.GetOrInsert(cache.Args([]int{1, 2}), func() (any, error) { return 3, nil })
	require.NoError(t, err)
	v, ok := c.Peek(cache.Args([]int{1, 2}))
	assert.True(t, ok, "value equality matches equal slices")
	assert.Equal(t, 3, v)
}

func TestParseConfig_TwoQSizedPerShard(t *testing.T) {
	t.Parallel()

	// 1030 entries over 4 shards rounds up to 258 per shard, as the bounded
	// cache itself does.
	cfg, err := ParseConfig([]byte("cache: {kind: bounded, capacity: 1030, shards: 4, policy: 2q}"))
	require.NoError(t, err)
	ctor, err := cfg.Constructor(nil)
	require.NoError(t, err)
	assert.Contains(t, ctor.Descriptor(), "2q(in=64,ghost=129)")
}

func TestParseConfig_Invalid(t *testing.T) {
	t.Parallel()

	for name, doc := range map[string]string{
		"kind":     "cache: {kind: disk}",
		"capacity": "cache: {kind: bounded}",
		"policy":   "cache: {kind: bounded, capacity: 8, policy: arc}",
		"equality": "cache: {kind: bounded, capacity: 8, equality: fuzzy}",
		"ttl":      "cache: {kind: bounded, capacity: 8, ttl: -1s}",
		"yaml":     "cache: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "memo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  kind: value\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "value", cfg.Cache.Kind)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLogConfig_Build(t *testing.T) {
	t.Parallel()

	log, err := LogConfig{Level: "warn"}.Build()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	_, err = LogConfig{Level: "loud"}.Build()
	assert.Error(t, err)
}
