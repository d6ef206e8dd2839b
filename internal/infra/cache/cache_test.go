package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/cache"
	"github.com/boddenberg/freight-quote-bfa-go/internal/port"
)

var _ port.Cache[[]domain.Carrier] = (*cache.InMemory[[]domain.Carrier])(nil)

func TestInMemory_SetAndGet(t *testing.T) {
	c := cache.New[[]domain.Carrier](5 * time.Minute)
	defer c.Close()

	c.Set("carriers:all", []domain.Carrier{{ID: "c1", Name: "Maersk"}})
	got, ok := c.Get("carriers:all")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if len(got) != 1 || got[0].Name != "Maersk" {
		t.Errorf("unexpected value %+v", got)
	}
}

func TestInMemory_Miss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestInMemory_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestInMemory_SweepRemovesExpired(t *testing.T) {
	c := cache.New[string](20 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(80 * time.Millisecond)

	if n := c.Len(); n != 0 {
		t.Fatalf("expected sweeper to drop expired entries, %d left", n)
	}
}

func TestInMemory_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	c.Delete("key1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestInMemory_CloseIsIdempotent(t *testing.T) {
	c := cache.New[string](time.Minute)
	c.Close()
	c.Close()
}
