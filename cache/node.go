package cache

// node is one memoized result owned by a shard, linked into the shard's
// recency list (head = most recently used).
type node struct {
	fp  string
	val any

	// key holds the call's arguments so that addresses rendered into fp
	// stay owned by live objects while the entry exists.
	key Key

	prev *node
	next *node

	// Absolute expiration deadline in UnixNano; zero means no TTL.
	exp int64
}

// Fingerprint implements policy.Node.
func (n *node) Fingerprint() string { return n.fp }
