package cache

import (
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"
)

// A mixed workload of GetOrInsert/Peek/Clear on random keys.
// Should pass under `-race` without detector reports.
func TestRace_Mixed(t *testing.T) {
	for name, ctor := range map[string]Constructor{
		"identity": Identity(),
		"bounded":  Bounded(Options{Capacity: 1024, Shards: 8}),
	} {
		t.Run(name, func(t *testing.T) {
			c := ctor.New()

			workers := 4 * runtime.GOMAXPROCS(0)
			deadline := time.Now().Add(500 * time.Millisecond)

			var wg sync.WaitGroup
			wg.Add(workers)
			for w := 0; w < workers; w++ {
				go func(id int) {
					defer wg.Done()
					r := rand.New(rand.NewSource(int64(id) * 9973))
					for time.Now().Before(deadline) {
						k := Args(r.Intn(5000))
						switch r.Intn(100) {
						case 0: // ~1%: Clear
							c.Clear()
						case 1, 2, 3, 4, 5, 6, 7, 8, 9:
							c.Peek(k)
						default:
							if _, err := c.GetOrInsert(k, func() (any, error) { return id, nil }); err != nil {
								t.Errorf("GetOrInsert: %v", err)
								return
							}
						}
					}
				}(w)
			}
			wg.Wait()
		})
	}
}
