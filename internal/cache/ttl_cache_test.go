package cache

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	ttl := 5 * time.Minute
	cache := New[string, int](ttl)

	if cache == nil {
		t.Fatal("New returned nil")
	}
	if cache.ttl != ttl {
		t.Errorf("TTL mismatch: got %v, want %v", cache.ttl, ttl)
	}
	if cache.Len() != 0 {
		t.Error("new cache should be empty")
	}
}

func TestSetAndGet(t *testing.T) {
	cache := New[string, int](time.Minute)

	cache.Set("psalms", 150)

	value, ok := cache.Get("psalms")
	if !ok {
		t.Fatal("Get returned ok=false for existing key")
	}
	if value != 150 {
		t.Errorf("Get returned wrong value: got %d, want 150", value)
	}

	if _, ok := cache.Get("nonexistent"); ok {
		t.Error("Get returned ok=true for non-existent key")
	}
}

func TestGetExpired(t *testing.T) {
	cache := New[string, int](time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("genesis", 50)
	if _, ok := cache.Get("genesis"); !ok {
		t.Fatal("Initial Get failed")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("genesis"); ok {
		t.Error("Get returned ok=true for expired entry")
	}
}

func TestPerEntryExpiry(t *testing.T) {
	cache := New[string, int](time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("old", 1)
	now = now.Add(45 * time.Second)
	cache.Set("new", 2)
	now = now.Add(30 * time.Second)

	if _, ok := cache.Get("old"); ok {
		t.Error("old entry should have expired")
	}
	if _, ok := cache.Get("new"); !ok {
		t.Error("new entry should still be live")
	}
	if removed := cache.Prune(); removed != 1 {
		t.Errorf("Prune removed %d, want 1", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("Len after prune = %d, want 1", cache.Len())
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	cache := New[string, string](0)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("k", "v")
	now = now.Add(24 * 365 * time.Hour)
	if v, ok := cache.Get("k"); !ok || v != "v" {
		t.Errorf("Get = %q, %v; want v, true", v, ok)
	}
}

func TestRemember(t *testing.T) {
	cache := New[string, int](time.Minute)
	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := cache.Remember("k", load)
		if err != nil || v != 42 {
			t.Fatalf("Remember = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := cache.Remember("bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("Remember error = %v, want boom", err)
	}
	if _, ok := cache.Get("bad"); ok {
		t.Error("failed loads must not be cached")
	}
}

func TestDeleteAndInvalidate(t *testing.T) {
	cache := New[string, int](time.Minute)
	cache.Set("a", 1)
	cache.Set("b", 2)

	cache.Delete("a")
	if _, ok := cache.Get("a"); ok {
		t.Error("deleted key still present")
	}

	cache.Invalidate()
	if cache.Len() != 0 {
		t.Errorf("Len after Invalidate = %d, want 0", cache.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	cache := New[int, int](time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Set(n, j)
				cache.Get(n)
				cache.Len()
			}
		}(i)
	}
	wg.Wait()

	if cache.Len() != 20 {
		t.Errorf("Len = %d, want 20", cache.Len())
	}
}
