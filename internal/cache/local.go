package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LocalTier is the process-local cache tier: a fixed-size LRU in front of
// the shared tier. It is constructor-injected, never ambient state; create
// it at process start and Flush it at shutdown.
type LocalTier struct {
	entries *lru.Cache[string, *Entry]
	now     func() time.Time
}

// NewLocalTier creates a local tier bounded to maxEntries with LRU eviction.
func NewLocalTier(maxEntries int) (*LocalTier, error) {
	c, err := lru.New[string, *Entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &LocalTier{entries: c, now: time.Now}, nil
}

// Get returns the entry for key, dropping it when its TTL has lapsed.
func (t *LocalTier) Get(key string) (*Entry, bool) {
	e, ok := t.entries.Get(key)
	if !ok {
		return nil, false
	}
	if e.expired(t.now()) {
		t.entries.Remove(key)
		return nil, false
	}
	return e, true
}

// Put stores the entry, evicting the least recently used one when full.
func (t *LocalTier) Put(e *Entry) {
	t.entries.Add(e.Key, e)
}

// Remove drops the entry for key if present.
func (t *LocalTier) Remove(key string) {
	t.entries.Remove(key)
}

// Len returns the current number of entries.
func (t *LocalTier) Len() int {
	return t.entries.Len()
}

// Flush discards all entries.
func (t *LocalTier) Flush() {
	t.entries.Purge()
}
