package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocationList keeps revoked token IDs until their expiry. Entries
// are dropped by Prune, which the scheduler runs periodically. A zero expiry
// marks a token that never expires and is kept for the life of the process.
type MemoryRevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (l *MemoryRevocationList) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" || (!until.IsZero() && !until.After(l.now())) {
		return nil
	}
	l.mu.Lock()
	l.entries[tokenID] = until
	l.mu.Unlock()
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	l.mu.RLock()
	until, ok := l.entries[tokenID]
	l.mu.RUnlock()
	return ok && (until.IsZero() || until.After(l.now())), nil
}

// Prune removes expired entries and returns how many were dropped.
func (l *MemoryRevocationList) Prune(_ context.Context) (int, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, until := range l.entries {
		if !until.IsZero() && !until.After(now) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (l *MemoryRevocationList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
