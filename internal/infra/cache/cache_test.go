package cache_test

import (
	"testing"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[domain.User](5 * time.Minute)

	c.Set("alice@example.com", domain.User{UID: "u-1", Email: "alice@example.com"})
	val, ok := c.Get("alice@example.com")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val.UID != "u-1" {
		t.Errorf("expected uid 'u-1', got '%s'", val.UID)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[domain.User](5 * time.Minute)

	_, ok := c.Get("nobody@example.com")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_Overwrite(t *testing.T) {
	c := cache.New[domain.User](5 * time.Minute)

	c.Set("bob@example.com", domain.User{UID: "u-old"})
	c.Set("bob@example.com", domain.User{UID: "u-new"})

	val, ok := c.Get("bob@example.com")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val.UID != "u-new" {
		t.Errorf("expected overwritten value 'u-new', got '%s'", val.UID)
	}
}
