package cache

import (
	"sync"
	"time"

	"github.com/IvanBrykalov/memocache/internal/util"
	"github.com/IvanBrykalov/memocache/policy"
)

// shard is an independent partition of a bounded cache with its own lock,
// fingerprint map and recency list (head = MRU, tail = LRU).
type shard struct {
	// ---- guarded by mu ----
	mu   sync.Mutex
	m    map[string]*node
	head *node
	tail *node
	len  int
	cap  int

	pol policy.ShardPolicy
	opt *Options

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newShard(capacity int, opt *Options) *shard {
	s := &shard{
		m:   make(map[string]*node, capacity),
		cap: capacity,
		opt: opt,
	}
	s.pol = opt.Policy.New(shardHooks{s: s})
	return s
}

// get returns the memoized result and lets the policy record the hit.
// An expired result is evicted and reported as a miss.
func (s *shard) get(fp string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[fp]
	if ok && s.expiredLocked(n) {
		s.evictNode(n, EvictTTL)
		ok = false
	}
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		return nil, false
	}

	s.pol.OnHit(n)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return n.val, true
}

// peek reads without promoting, counting or evicting.
func (s *shard) peek(fp string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[fp]
	if !ok || s.expiredLocked(n) {
		return nil, false
	}
	return n.val, true
}

// put stores a freshly computed result. An existing entry for fp (a
// computation that raced with a Clear) is overwritten in place.
func (s *shard) put(fp string, k Key, v any, exp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[fp]; ok {
		n.key = k
		n.val = v
		n.exp = exp
		s.pol.OnHit(n)
		return
	}

	n := &node{fp: fp, val: v, key: k, exp: exp}
	s.m[fp] = n
	if ev := s.pol.OnAdd(n); ev != nil {
		s.evictNode(ev.(*node), EvictPolicy)
	}
	s.enforceCapacityLocked()
}

// clearLocked drops every entry and resets policy state; no OnEvict calls.
func (s *shard) clearLocked() {
	s.m = make(map[string]*node, s.cap)
	s.head, s.tail = nil, nil
	s.len = 0
	s.pol.OnClear()
}

func (s *shard) length() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len
}

// -------------------- internals (mu held) --------------------

func (s *shard) expiredLocked(n *node) bool {
	return n.exp != 0 && s.now() > n.exp
}

func (s *shard) now() int64 {
	if s.opt.Clock != nil {
		return s.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func (s *shard) insertFront(n *node) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
}

func (s *shard) moveToFront(n *node) {
	if n == s.head {
		return
	}
	s.unlink(n)
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *shard) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (s *shard) removeNode(n *node) {
	s.unlink(n)
	s.len--
}

// evictNode removes n, updates counters and calls OnEvict.
func (s *shard) evictNode(n *node, reason EvictReason) {
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, n.fp)
	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(n.fp, n.val, reason)
	}
}

// enforceCapacityLocked trims from the LRU end until the shard fits.
func (s *shard) enforceCapacityLocked() {
	for s.len > s.cap && s.tail != nil {
		s.evictNode(s.tail, EvictCapacity)
	}
	s.opt.Metrics.Size(s.len)
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard list to policy.Hooks.
type shardHooks struct{ s *shard }

func (h shardHooks) MoveToFront(x policy.Node) { h.s.moveToFront(x.(*node)) }
func (h shardHooks) PushFront(x policy.Node)   { h.s.insertFront(x.(*node)) }
func (h shardHooks) Remove(x policy.Node)      { h.s.removeNode(x.(*node)) }
func (h shardHooks) Len() int                  { return h.s.len }

func (h shardHooks) Back() policy.Node {
	// avoid returning a typed nil inside the interface
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
