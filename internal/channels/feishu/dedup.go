package feishu

import "sync"

const (
	// dedupMaxEntries triggers a trim when exceeded.
	dedupMaxEntries = 1000
	// dedupTrimTo is the number of most-recent ids kept after a trim.
	dedupTrimTo = 500
)

// dedupCache is an insertion-ordered bounded set of platform message ids.
// It suppresses redelivery within the cache window: the platform may
// re-push an event, the bus must see it once.
type dedupCache struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
}

func newDedupCache() *dedupCache {
	return &dedupCache{ids: make(map[string]struct{})}
}

// Seen records the id and reports whether it was already present.
func (d *dedupCache) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.ids[id]; ok {
		return true
	}

	d.ids[id] = struct{}{}
	d.order = append(d.order, id)

	if len(d.order) > dedupMaxEntries {
		cut := len(d.order) - dedupTrimTo
		for _, old := range d.order[:cut] {
			delete(d.ids, old)
		}
		d.order = append([]string(nil), d.order[cut:]...)
	}
	return false
}

// Len reports the number of cached ids.
func (d *dedupCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// Contains checks membership without recording.
func (d *dedupCache) Contains(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.ids[id]
	return ok
}
