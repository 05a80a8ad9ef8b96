package dispatch

import (
	"sync"
	"time"
)

const (
	dedupEventPrefix   = "event:"
	dedupMessagePrefix = "msg:"
)

// Deduper suppresses repeat deliveries of the same transport event within a
// TTL window. Keys are transport-assigned identifiers only — content-based
// keys would also suppress legitimately repeated commands.
type Deduper struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen reports whether this event/message identifier pair was already
// processed within the TTL, and records it if not. The evict-check-insert
// sequence holds one lock so two concurrent deliveries of the same event
// cannot both pass.
func (d *Deduper) Seen(eventID, messageID string) bool {
	keys := make([]string, 0, 2)
	if eventID != "" {
		keys = append(keys, dedupEventPrefix+eventID)
	}
	if messageID != "" {
		keys = append(keys, dedupMessagePrefix+messageID)
	}
	if len(keys) == 0 {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, insertedAt := range d.entries {
		if now.Sub(insertedAt) > d.ttl {
			delete(d.entries, key)
		}
	}

	for _, key := range keys {
		if _, ok := d.entries[key]; ok {
			return true
		}
	}

	for _, key := range keys {
		d.entries[key] = now
	}
	return false
}

// Len returns the number of live cache entries.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
