package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeReflector struct {
	calls int32
	err   error
	delay time.Duration
}

func (f *fakeReflector) Reflect(ctx context.Context, schema string) (*Catalog, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Catalog{
		Schema:      schema,
		Tables:      map[string]*Table{"customer": {Name: "customer", Kind: KindBaseTable}},
		TableNames:  []string{"customer"},
		ReflectedAt: time.Now(),
	}, nil
}

func TestCache_GetCachesSnapshot(t *testing.T) {
	refl := &fakeReflector{}
	cache := NewCache(refl, time.Minute, zerolog.Nop())

	first, err := cache.Get(context.Background(), "public")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, err := cache.Get(context.Background(), "public")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if atomic.LoadInt32(&refl.calls) != 1 {
		t.Errorf("expected 1 reflection, got %d", refl.calls)
	}
	if first != second {
		t.Error("expected the identical snapshot from cache")
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	refl := &fakeReflector{err: errors.New("connection refused")}
	cache := NewCache(refl, time.Minute, zerolog.Nop())

	if _, err := cache.Get(context.Background(), "public"); err == nil {
		t.Fatal("expected reflection error")
	}

	refl.err = nil
	if _, err := cache.Get(context.Background(), "public"); err != nil {
		t.Fatalf("expected recovery after error, got %v", err)
	}
	if atomic.LoadInt32(&refl.calls) != 2 {
		t.Errorf("expected 2 reflections (no error caching), got %d", refl.calls)
	}
}

func TestCache_Invalidate(t *testing.T) {
	refl := &fakeReflector{}
	cache := NewCache(refl, time.Minute, zerolog.Nop())

	if _, err := cache.Get(context.Background(), "public"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	cache.Invalidate()
	if _, err := cache.Get(context.Background(), "public"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if atomic.LoadInt32(&refl.calls) != 2 {
		t.Errorf("expected 2 reflections after invalidation, got %d", refl.calls)
	}
}

func TestCache_InvalidateSchemaIsScoped(t *testing.T) {
	refl := &fakeReflector{}
	cache := NewCache(refl, time.Minute, zerolog.Nop())

	cache.Get(context.Background(), "public")
	cache.Get(context.Background(), "sales")
	cache.InvalidateSchema("sales")

	cache.Get(context.Background(), "public")
	cache.Get(context.Background(), "sales")

	// public stayed cached, sales re-reflected
	if got := atomic.LoadInt32(&refl.calls); got != 3 {
		t.Errorf("expected 3 reflections, got %d", got)
	}
}

func TestCache_ConcurrentMissesCollapse(t *testing.T) {
	refl := &fakeReflector{delay: 20 * time.Millisecond}
	cache := NewCache(refl, time.Minute, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), "public"); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&refl.calls); got != 1 {
		t.Errorf("expected concurrent misses to collapse into 1 reflection, got %d", got)
	}
}

func TestCache_ExpiredEntryRefreshes(t *testing.T) {
	refl := &fakeReflector{}
	cache := NewCache(refl, 10*time.Millisecond, zerolog.Nop())

	cache.Get(context.Background(), "public")
	time.Sleep(20 * time.Millisecond)
	cache.Get(context.Background(), "public")

	if got := atomic.LoadInt32(&refl.calls); got != 2 {
		t.Errorf("expected refresh after TTL expiry, got %d reflections", got)
	}
}
