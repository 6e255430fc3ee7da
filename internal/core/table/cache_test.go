package table

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingLoader struct {
	calls    int
	degraded bool
}

func (l *countingLoader) load(context.Context) (Snapshot, error) {
	l.calls++
	return Snapshot{Version: "v", Degraded: l.degraded}, nil
}

func TestCache_HitWithinTTL(t *testing.T) {
	t.Parallel()

	clock := &stubClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewCache(time.Minute, clock)
	loader := &countingLoader{}

	for i := 0; i < 3; i++ {
		if _, err := cache.GetOrLoad(context.Background(), "items", loader.load); err != nil {
			t.Fatalf("GetOrLoad returned error: %v", err)
		}
	}
	if loader.calls != 1 {
		t.Fatalf("expected single load, got %d", loader.calls)
	}

	clock.Advance(time.Minute)
	if _, err := cache.GetOrLoad(context.Background(), "items", loader.load); err != nil {
		t.Fatalf("GetOrLoad returned error: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, got %d", loader.calls)
	}
}

func TestCache_ZeroTTLAlwaysLoads(t *testing.T) {
	t.Parallel()

	cache := NewCache(0, nil)
	loader := &countingLoader{}
	for i := 0; i < 3; i++ {
		if _, err := cache.GetOrLoad(context.Background(), "items", loader.load); err != nil {
			t.Fatalf("GetOrLoad returned error: %v", err)
		}
	}
	if loader.calls != 3 {
		t.Fatalf("expected every call to load, got %d", loader.calls)
	}
}

func TestCache_DoesNotKeepDegradedSnapshots(t *testing.T) {
	t.Parallel()

	cache := NewCache(time.Minute, &stubClock{now: time.Now()})
	loader := &countingLoader{degraded: true}
	for i := 0; i < 2; i++ {
		if _, err := cache.GetOrLoad(context.Background(), "items", loader.load); err != nil {
			t.Fatalf("GetOrLoad returned error: %v", err)
		}
	}
	if loader.calls != 2 {
		t.Fatalf("expected degraded snapshot to be reloaded, got %d loads", loader.calls)
	}
}

func TestCache_Invalidate(t *testing.T) {
	t.Parallel()

	cache := NewCache(time.Minute, &stubClock{now: time.Now()})
	items := &countingLoader{}
	others := &countingLoader{}
	ctx := context.Background()

	_, _ = cache.GetOrLoad(ctx, "items", items.load)
	_, _ = cache.GetOrLoad(ctx, "others", others.load)

	cache.Invalidate("items")
	_, _ = cache.GetOrLoad(ctx, "items", items.load)
	_, _ = cache.GetOrLoad(ctx, "others", others.load)
	if items.calls != 2 || others.calls != 1 {
		t.Fatalf("unexpected loads after Invalidate: items=%d others=%d", items.calls, others.calls)
	}

	cache.InvalidateAll()
	_, _ = cache.GetOrLoad(ctx, "items", items.load)
	_, _ = cache.GetOrLoad(ctx, "others", others.load)
	if items.calls != 3 || others.calls != 2 {
		t.Fatalf("unexpected loads after InvalidateAll: items=%d others=%d", items.calls, others.calls)
	}
}

func TestCache_PropagatesLoadError(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	cache := NewCache(time.Minute, nil)
	_, err := cache.GetOrLoad(context.Background(), "items", func(context.Context) (Snapshot, error) {
		return Snapshot{}, errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected load error, got %v", err)
	}
}
