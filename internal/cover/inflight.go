package cover

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// flightTable deduplicates concurrent resolutions per cache key and bounds
// how many may run at once. At capacity, work for a new key is refused
// outright instead of queuing; callers treat that as an uncached miss.
type flightTable struct {
	mu       sync.Mutex
	active   map[string]struct{}
	capacity int

	group singleflight.Group
}

func newFlightTable(capacity int) *flightTable {
	if capacity <= 0 {
		capacity = 64
	}
	return &flightTable{
		active:   make(map[string]struct{}),
		capacity: capacity,
	}
}

// do runs fn for key, sharing one execution among concurrent callers of the
// same key. The second return reports whether the work ran at all: false
// means the table was full and the key had no running flight to join.
func (t *flightTable) do(key string, fn func() Result) (Result, bool) {
	t.mu.Lock()
	if _, running := t.active[key]; !running {
		if len(t.active) >= t.capacity {
			t.mu.Unlock()
			return Result{}, false
		}
		t.active[key] = struct{}{}
	}
	t.mu.Unlock()

	v, _, _ := t.group.Do(key, func() (any, error) {
		defer func() {
			t.mu.Lock()
			delete(t.active, key)
			t.mu.Unlock()
		}()
		return fn(), nil
	})
	return v.(Result), true
}

// forget detaches future callers from any in-flight execution for key, so a
// resolution started before an invalidation cannot satisfy callers after it.
func (t *flightTable) forget(key string) {
	t.group.Forget(key)
}
