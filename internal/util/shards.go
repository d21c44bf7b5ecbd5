package util

import (
	"math/bits"
	"runtime"
)

// MaxShards caps the automatic shard count.
const MaxShards = 256

// ReasonableShardCount returns nextPow2(2*GOMAXPROCS) clamped to [1..MaxShards].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 2)))
	if n > MaxShards {
		n = MaxShards
	}
	return n
}

// ShardCount normalizes a requested shard count: <= 0 means automatic,
// anything else is rounded up to a power of two.
func ShardCount(requested int) int {
	if requested <= 0 {
		return ReasonableShardCount()
	}
	return int(NextPow2(uint64(requested)))
}

// ShardIndex maps a hash to a shard index. The mask path is used for
// power-of-two counts; other counts fall back to modulo.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool { return bits.OnesCount64(x) == 1 }

// NextPow2 returns the smallest power of two >= x. NextPow2(0) is 1;
// results that would overflow clamp to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	n := bits.Len64(x - 1)
	if n >= 64 {
		return 1 << 63
	}
	return 1 << n
}
