// Package policy defines the eviction policy contract used by bounded
// memo caches. Entries are addressed by their argument fingerprint.
package policy

// Node is a resident memo entry as seen by a policy.
type Node interface {
	// Fingerprint is the canonical argument key of the entry.
	Fingerprint() string
}

// Hooks expose O(1) list operations over the shard's recency list
// (head = most recently used). Implementations are provided by the shard.
//
// Concurrency: all hook calls happen under the shard lock.
// Hooks manage only the list; the shard owns the fingerprint->node map.
type Hooks interface {
	MoveToFront(Node)
	PushFront(Node)
	Remove(Node)
	Back() Node
	Len() int
}

// ShardPolicy is a per-shard policy instance bound to shard hooks.
// All methods are invoked under the shard lock.
//
//   - OnAdd places a freshly memoized entry and may nominate a victim;
//     the shard evicts it and then calls OnRemove for it.
//   - OnHit runs when a memoized result is served.
//   - OnRemove notifies the policy that an entry left the shard.
//   - OnClear runs when the whole memo table is emptied; policies must drop
//     every piece of per-entry state, including history such as ghosts.
type ShardPolicy interface {
	OnAdd(Node) (evict Node)
	OnHit(Node)
	OnRemove(Node)
	OnClear()
}

// Policy builds shard-local policy instances.
type Policy interface {
	// Name identifies the policy in cache constructor descriptors; two
	// policies with equal names and parameters must behave identically.
	Name() string
	New(Hooks) ShardPolicy
}
