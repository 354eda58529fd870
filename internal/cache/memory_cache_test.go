package cache

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryCache_SetAndGet(t *testing.T) {
	cache := NewInMemoryCache(1 * time.Second)
	ctx := context.Background()
	key := "foo"
	value := "bar"

	cache.Set(ctx, key, value)

	got, found := cache.Get(ctx, key)
	if !found {
		t.Fatal("expected cache hit")
	}
	if got != value {
		t.Errorf("expected %v, got %v", value, got)
	}
}

func TestInMemoryCache_Miss(t *testing.T) {
	cache := NewInMemoryCache(1 * time.Second)
	if _, found := cache.Get(context.Background(), "absent"); found {
		t.Error("expected cache miss for absent key")
	}
}

func TestInMemoryCache_Expiration(t *testing.T) {
	cache := NewInMemoryCache(50 * time.Millisecond)
	ctx := context.Background()
	key := "baz"
	value := "qux"

	cache.Set(ctx, key, value)

	time.Sleep(60 * time.Millisecond)
	if _, found := cache.Get(ctx, key); found {
		t.Errorf("expected miss for expired item")
	}
}

func TestInMemoryCache_ContextDone(t *testing.T) {
	cache := NewInMemoryCache(1 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cache.Set(ctx, "k", "v")
	if _, found := cache.Get(context.Background(), "k"); found {
		t.Error("Set with done context should be dropped")
	}
	if _, found := cache.Get(ctx, "k"); found {
		t.Error("Get with done context should miss")
	}
}

func TestInMemoryCache_Concurrency(t *testing.T) {
	cache := NewInMemoryCache(1 * time.Second)
	ctx := context.Background()
	key := "concurrent"
	value := "val"
	done := make(chan struct{}, 2)

	go func() {
		cache.Set(ctx, key, value)
		done <- struct{}{}
	}()
	go func() {
		cache.Get(ctx, key)
		done <- struct{}{}
	}()

	<-done
	<-done
	if got, found := cache.Get(ctx, key); !found || got != value {
		t.Errorf("expected %v after concurrent access, got %v (found=%v)", value, got, found)
	}
}
