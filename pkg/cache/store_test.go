package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStore_SetAndGet(t *testing.T) {
	store := NewStore(10)
	key := Key{Path: "/v1/items/42/"}

	store.Set(key, []byte(`{"n":1}`), time.Minute)

	value, ok := store.Get(key)
	if !ok {
		t.Fatal("Get() should hit after Set()")
	}
	if string(value) != `{"n":1}` {
		t.Errorf("value = %s", value)
	}
}

func TestStore_GetAbsent(t *testing.T) {
	store := NewStore(10)

	if _, ok := store.Get(Key{Path: "/v1/unknown/"}); ok {
		t.Error("Get() should miss on an absent key")
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	store := NewStore(10)
	key := Key{Path: "/v1/items/a/"}

	store.Set(key, []byte(`{"n":1}`), 100*time.Millisecond)

	if _, ok := store.Get(key); !ok {
		t.Fatal("entry should be fresh at t=0")
	}

	time.Sleep(150 * time.Millisecond)

	if _, ok := store.Get(key); ok {
		t.Error("entry should be stale at t=150ms")
	}
	if store.Len() != 0 {
		t.Errorf("stale entry should be purged on touch, Len() = %d", store.Len())
	}
}

func TestStore_Overwrite(t *testing.T) {
	store := NewStore(10)
	key := Key{Path: "/v1/items/42/"}

	store.Set(key, []byte("old"), time.Minute)
	store.Set(key, []byte("new"), time.Minute)

	value, ok := store.Get(key)
	if !ok || string(value) != "new" {
		t.Errorf("Get() = %q, %v, want new, true", value, ok)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestStore_LRUEviction(t *testing.T) {
	store := NewStore(2)

	keyA := Key{Path: "/a"}
	keyB := Key{Path: "/b"}
	keyC := Key{Path: "/c"}

	store.Set(keyA, []byte("a"), time.Minute)
	store.Set(keyB, []byte("b"), time.Minute)
	store.Set(keyC, []byte("c"), time.Minute)

	if _, ok := store.Get(keyA); ok {
		t.Error("A should have been evicted as least-recently-used")
	}
	if _, ok := store.Get(keyB); !ok {
		t.Error("B should survive")
	}
	if _, ok := store.Get(keyC); !ok {
		t.Error("C should survive")
	}
	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
}

func TestStore_ReadPromotesRecency(t *testing.T) {
	store := NewStore(2)

	keyA := Key{Path: "/a"}
	keyB := Key{Path: "/b"}
	keyC := Key{Path: "/c"}

	store.Set(keyA, []byte("a"), time.Minute)
	store.Set(keyB, []byte("b"), time.Minute)

	// Touch A so B becomes the eviction candidate.
	if _, ok := store.Get(keyA); !ok {
		t.Fatal("A should be present")
	}

	store.Set(keyC, []byte("c"), time.Minute)

	if _, ok := store.Get(keyA); !ok {
		t.Error("A was read recently and should survive")
	}
	if _, ok := store.Get(keyB); ok {
		t.Error("B should have been evicted")
	}
}

func TestStore_Delete(t *testing.T) {
	store := NewStore(10)
	key := Key{Path: "/v1/items/42/"}

	store.Set(key, []byte("x"), time.Minute)
	store.Delete(key)

	if _, ok := store.Get(key); ok {
		t.Error("Get() should miss after Delete()")
	}
}

func TestStore_Purge(t *testing.T) {
	store := NewStore(10)

	for i := 0; i < 5; i++ {
		store.Set(Key{Path: fmt.Sprintf("/v1/items/%d/", i)}, []byte("x"), time.Minute)
	}
	store.Purge()

	if store.Len() != 0 {
		t.Errorf("Len() = %d after Purge(), want 0", store.Len())
	}
}

func TestStore_Stats(t *testing.T) {
	store := NewStore(2)

	store.Set(Key{Path: "/a"}, []byte("aa"), time.Minute)
	store.Get(Key{Path: "/a"})
	store.Get(Key{Path: "/missing"})
	store.Set(Key{Path: "/b"}, []byte("bb"), time.Minute)
	store.Set(Key{Path: "/c"}, []byte("cc"), time.Minute)

	stats := store.Stats()
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.SizeBytes != 4 {
		t.Errorf("SizeBytes = %d, want 4", stats.SizeBytes)
	}
}

func TestStore_NonPositiveTTLIgnored(t *testing.T) {
	store := NewStore(10)
	key := Key{Path: "/a"}

	store.Set(key, []byte("x"), 0)
	if _, ok := store.Get(key); ok {
		t.Error("zero-TTL Set() should not store anything")
	}

	store.Set(key, []byte("x"), -time.Second)
	if _, ok := store.Get(key); ok {
		t.Error("negative-TTL Set() should not store anything")
	}

	// A dropped write must not disturb an existing entry.
	store.Set(key, []byte("kept"), time.Minute)
	store.Set(key, []byte("gone"), 0)
	got, ok := store.Get(key)
	if !ok || string(got) != "kept" {
		t.Errorf("Get() after non-positive-TTL Set() = %q, %v, want %q, true", got, ok, "kept")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore(50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := Key{Path: fmt.Sprintf("/v1/items/%d/", n%10)}
			for j := 0; j < 100; j++ {
				store.Set(key, []byte("v"), time.Minute)
				store.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if store.Len() > 10 {
		t.Errorf("Len() = %d, want <= 10 distinct keys", store.Len())
	}
}

func TestNewStore_PanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewStore should panic with non-positive capacity")
		}
	}()
	NewStore(0)
}
