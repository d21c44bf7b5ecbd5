// Package twoq implements the 2Q eviction policy.
//
// Memoized functions are often probed with one-off arguments (a scan over an
// input range) mixed with a hot working set. 2Q keeps first-time entries in a
// small probation queue (A1in) so one-off results cannot flush the hot set,
// and remembers the fingerprints recently dropped from probation (A1out
// ghosts) so a second request for them is admitted straight to the main queue.
package twoq

import (
	"container/list"
	"fmt"

	"github.com/IvanBrykalov/memocache/policy"
)

type twoQPolicy struct {
	capIn    int
	capGhost int
}

// New returns a 2Q policy factory. Sizes are per shard: a common choice is
// capIn of about 25% and capGhost of 50-100% of the shard capacity.
func New(capIn, capGhost int) policy.Policy {
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return twoQPolicy{capIn: capIn, capGhost: capGhost}
}

func (p twoQPolicy) Name() string {
	return fmt.Sprintf("2q(in=%d,ghost=%d)", p.capIn, p.capGhost)
}

func (p twoQPolicy) New(h policy.Hooks) policy.ShardPolicy {
	q := &twoQ{h: h, capIn: p.capIn, capGhost: p.capGhost}
	q.OnClear()
	return q
}

// twoQ is the shard-local state. Resident entries not indexed by inIdx
// belong to the main queue (Am), whose order lives in the shard list.
type twoQ struct {
	h policy.Hooks

	capIn    int
	capGhost int

	// A1in, front = newest.
	inList *list.List
	inIdx  map[policy.Node]*list.Element

	// A1out ghosts: fingerprints only, front = newest.
	ghostList *list.List
	ghostIdx  map[string]*list.Element
}

// OnAdd admits ghosts directly to Am; everything else goes to A1in, whose
// oldest entry is nominated once A1in overflows.
func (q *twoQ) OnAdd(n policy.Node) policy.Node {
	fp := n.Fingerprint()
	if ge, ok := q.ghostIdx[fp]; ok {
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, fp)
		q.h.PushFront(n)
		return nil
	}

	q.h.PushFront(n)
	q.inIdx[n] = q.inList.PushFront(n)

	if q.inList.Len() > q.capIn {
		if oldest := q.inList.Back(); oldest != nil {
			return oldest.Value.(policy.Node)
		}
	}
	return nil
}

// OnHit graduates A1in entries to Am and promotes the entry.
func (q *twoQ) OnHit(n policy.Node) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, n)
	}
	q.h.MoveToFront(n)
}

// OnRemove turns entries leaving A1in into ghosts. Am removals leave no trace.
func (q *twoQ) OnRemove(n policy.Node) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.inList.Remove(el)
	delete(q.inIdx, n)

	fp := n.Fingerprint()
	if old := q.ghostIdx[fp]; old != nil {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[fp] = q.ghostList.PushFront(fp)

	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		delete(q.ghostIdx, tail.Value.(string))
		q.ghostList.Remove(tail)
	}
}

// OnClear forgets queues and ghosts: results memoized before a clear must not
// influence admission afterwards.
func (q *twoQ) OnClear() {
	q.inList = list.New()
	q.inIdx = make(map[policy.Node]*list.Element)
	q.ghostList = list.New()
	q.ghostIdx = make(map[string]*list.Element)
}
