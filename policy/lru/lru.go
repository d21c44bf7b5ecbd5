// Package lru implements the LRU eviction policy.
package lru

import "github.com/IvanBrykalov/memocache/policy"

type lruPolicy struct{}

// New returns the LRU policy factory.
func New() policy.Policy { return lruPolicy{} }

func (lruPolicy) Name() string { return "lru" }

func (lruPolicy) New(h policy.Hooks) policy.ShardPolicy { return &lru{h: h} }

// lru moves entries to the front on every hit; the shard trims from the back.
type lru struct {
	h policy.Hooks
}

// OnAdd never nominates a victim: capacity is enforced by the shard.
func (p *lru) OnAdd(n policy.Node) policy.Node {
	p.h.PushFront(n)
	return nil
}

func (p *lru) OnHit(n policy.Node) { p.h.MoveToFront(n) }

func (p *lru) OnRemove(policy.Node) {}

func (p *lru) OnClear() {}
