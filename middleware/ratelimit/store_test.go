package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	t.Run("Get non-existent key", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer store.Close()

		count, resetTime, exists := store.Get("non-existent")
		if exists {
			t.Error("expected key to not exist")
		}
		if count != 0 {
			t.Errorf("expected count 0, got %d", count)
		}
		if !resetTime.IsZero() {
			t.Error("expected zero time")
		}
	})

	t.Run("Set and Get", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer store.Close()

		resetAt := time.Now().Add(time.Minute)
		store.Set("k", 5, resetAt)

		count, resetTime, exists := store.Get("k")
		if !exists {
			t.Fatal("expected key to exist")
		}
		if count != 5 {
			t.Errorf("expected count 5, got %d", count)
		}
		if !resetTime.Equal(resetAt) {
			t.Errorf("expected reset time %v, got %v", resetAt, resetTime)
		}
	})

	t.Run("Increment opens and extends a window", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer store.Close()

		resetAt := time.Now().Add(time.Minute)
		if got := store.Increment("k", resetAt); got != 1 {
			t.Errorf("expected 1, got %d", got)
		}
		if got := store.Increment("k", resetAt); got != 2 {
			t.Errorf("expected 2, got %d", got)
		}
	})

	t.Run("expired window restarts", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer store.Close()

		store.Set("k", 9, time.Now().Add(-time.Second))

		if _, _, exists := store.Get("k"); exists {
			t.Error("expected expired key to be hidden")
		}
		if got := store.Increment("k", time.Now().Add(time.Minute)); got != 1 {
			t.Errorf("expected fresh window, got %d", got)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer store.Close()

		store.Set("k", 3, time.Now().Add(time.Minute))
		store.Reset("k")

		if _, _, exists := store.Get("k"); exists {
			t.Error("expected key to be removed")
		}
	})

	t.Run("purgeExpired drops only expired windows", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer store.Close()

		store.Set("old", 1, time.Now().Add(-time.Second))
		store.Set("live", 1, time.Now().Add(time.Minute))
		store.purgeExpired()

		if store.Len() != 1 {
			t.Errorf("expected 1 entry, got %d", store.Len())
		}
	})

	t.Run("concurrent increments", func(t *testing.T) {
		store := NewMemoryStore(time.Minute)
		defer store.Close()

		resetAt := time.Now().Add(time.Minute)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.Increment("k", resetAt)
			}()
		}
		wg.Wait()

		if count, _, _ := store.Get("k"); count != 50 {
			t.Errorf("expected 50, got %d", count)
		}
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		store := NewMemoryStore(time.Millisecond)
		store.Close()
		store.Close()
	})
}
