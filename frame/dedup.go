package frame

import (
	"sync"
	"time"
)

const (
	dedupWindowSize = 1000
	dedupWindowTTL  = 5 * time.Minute
)

// dedupEntry tracks a seen frame identity.
type dedupEntry struct {
	key  string
	seen time.Time
}

// DedupWindow is a per-conversation sliding window deduplicator.
// It remembers up to dedupWindowSize identities or dedupWindowTTL,
// whichever is reached first. Reconnect-triggered re-sync commonly
// redelivers frames; the window short-circuits exact redelivery before
// the merge path runs.
type DedupWindow struct {
	mu      sync.Mutex
	now     func() time.Time
	entries []dedupEntry
}

// NewDedupWindow creates a new dedup window.
func NewDedupWindow() *DedupWindow {
	return &DedupWindow{
		now:     time.Now,
		entries: make([]dedupEntry, 0, dedupWindowSize),
	}
}

// IsDuplicate returns true if the identity has already been seen.
// If not a duplicate, it records the identity.
func (d *DedupWindow) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	// Evict expired entries
	cutoff := now.Add(-dedupWindowTTL)
	start := 0
	for start < len(d.entries) && d.entries[start].seen.Before(cutoff) {
		start++
	}
	if start > 0 {
		d.entries = d.entries[start:]
	}

	// Check for duplicate
	for _, e := range d.entries {
		if e.key == key {
			return true
		}
	}

	// Evict oldest if at capacity
	if len(d.entries) >= dedupWindowSize {
		d.entries = d.entries[1:]
	}

	d.entries = append(d.entries, dedupEntry{key: key, seen: now})
	return false
}

// Len returns the current number of tracked identities.
func (d *DedupWindow) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
