package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRevocationListLifecycle(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	list := NewMemoryRevocationList()
	list.now = func() time.Time { return now }
	ctx := context.Background()

	if err := list.Revoke(ctx, "short", now.Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := list.Revoke(ctx, "long", now.Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := list.Revoke(ctx, "already-expired", now.Add(-time.Second)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if list.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", list.Len())
	}

	revoked, _ := list.IsRevoked(ctx, "short")
	if !revoked {
		t.Fatalf("expected short to be revoked")
	}

	now = now.Add(2 * time.Minute)
	revoked, _ = list.IsRevoked(ctx, "short")
	if revoked {
		t.Fatalf("expected short to lapse after its expiry")
	}

	removed, err := list.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 || list.Len() != 1 {
		t.Fatalf("expected prune to drop 1 entry leaving 1, got removed=%d len=%d", removed, list.Len())
	}
	revoked, _ = list.IsRevoked(ctx, "long")
	if !revoked {
		t.Fatalf("expected long to stay revoked")
	}
}

func TestMemoryRevocationListKeepsZeroExpiryForever(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	list := NewMemoryRevocationList()
	list.now = func() time.Time { return now }
	ctx := context.Background()

	if err := list.Revoke(ctx, "no-expiry", time.Time{}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if list.Len() != 1 {
		t.Fatalf("expected zero expiry to be stored, got %d entries", list.Len())
	}

	now = now.AddDate(1, 0, 0)
	removed, err := list.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 0 || list.Len() != 1 {
		t.Fatalf("expected prune to keep the entry, got removed=%d len=%d", removed, list.Len())
	}
	revoked, _ := list.IsRevoked(ctx, "no-expiry")
	if !revoked {
		t.Fatalf("expected no-expiry token to stay revoked")
	}
}
