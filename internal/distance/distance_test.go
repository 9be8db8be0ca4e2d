package distance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dishfinder/internal/domain/entities"
	"dishfinder/internal/repository"
	"dishfinder/internal/repository/memory"
	"dishfinder/internal/scope"
	"dishfinder/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeRoutes answers every lookup with meters (or err) and counts calls.
type fakeRoutes struct {
	meters  float64
	err     error
	delay   time.Duration
	calls   int32
	queries []string
	mu      sync.Mutex
}

func (f *fakeRoutes) DistanceMeters(ctx context.Context, origin entities.LatLng, destination string) (float64, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.queries = append(f.queries, destination)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.meters, f.err
}

func floatPtr(f float64) *float64 { return &f }

var origin = entities.LatLng{Lat: 10.776889, Lng: 106.700806}

func setupResolver(t *testing.T, routes RouteLookup) (*Resolver, *Cache, *memory.KVStore, *telemetry.Metrics) {
	t.Helper()
	kv := memory.NewKVStore(0)
	t.Cleanup(kv.Stop)
	cache := NewCache(kv, DefaultTTL, nil)
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	return NewResolver(cache, routes, DefaultPlausibility, metrics, nil), cache, kv, metrics
}

func TestSignature(t *testing.T) {
	tests := []struct {
		name     string
		origin   entities.LatLng
		dest     string
		address  string
		expected string
	}{
		{"Rounds to 5 places", entities.LatLng{Lat: 10.7768889, Lng: 106.7008061}, "Pho 24", "1 Le Loi", "10.77689,106.70081|Pho 24|1 Le Loi"},
		{"Pads to 5 places", entities.LatLng{Lat: 10.5, Lng: -106}, "Pho 24", "", "10.50000,-106.00000|Pho 24|"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Signature(tt.origin, tt.dest, tt.address); got != tt.expected {
				t.Errorf("Signature() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestSignature_JitterBeyondFifthDecimalIsIgnored(t *testing.T) {
	a := Signature(entities.LatLng{Lat: 10.7768801, Lng: 106.7008049}, "Pho", "")
	b := Signature(entities.LatLng{Lat: 10.7768849, Lng: 106.7008012}, "Pho", "")
	if a != b {
		t.Errorf("Expected identical signatures, got %q and %q", a, b)
	}

	c := Signature(entities.LatLng{Lat: 10.77699, Lng: 106.70080}, "Pho", "")
	if a == c {
		t.Error("Expected a different origin to change the signature")
	}
}

func TestCache_GetSet(t *testing.T) {
	kv := memory.NewKVStore(0)
	defer kv.Stop()
	cache := NewCache(kv, DefaultTTL, nil)
	ctx := context.Background()
	sig := Signature(origin, "Pho 24", "1 Le Loi")

	if _, ok := cache.Get(ctx, "alice", 7, sig); ok {
		t.Fatal("Expected miss on empty cache")
	}

	cache.Set(ctx, "alice", 7, sig, 1234.5)
	if got, ok := cache.Get(ctx, "alice", 7, sig); !ok || got != 1234.5 {
		t.Fatalf("Expected round-trip 1234.5, got %v (%v)", got, ok)
	}

	if _, ok := cache.Get(ctx, "alice", 7, sig+"x"); ok {
		t.Error("Expected miss when signature differs by one character")
	}
	if _, ok := cache.Get(ctx, "alice", 7, Signature(origin, "Pho 24", "2 Le Loi")); ok {
		t.Error("Expected miss when address differs")
	}
	if _, ok := cache.Get(ctx, "alice", 8, sig); ok {
		t.Error("Expected miss for another destination id")
	}
}

func TestCache_TTL(t *testing.T) {
	kv := memory.NewKVStore(0)
	defer kv.Stop()
	cache := NewCache(kv, DefaultTTL, nil)
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	cache.Set(ctx, "", 1, "sig", 500)

	now = now.Add(DefaultTTL)
	if _, ok := cache.Get(ctx, "", 1, "sig"); !ok {
		t.Error("Expected hit at exactly the TTL")
	}

	now = now.Add(time.Millisecond)
	if _, ok := cache.Get(ctx, "", 1, "sig"); ok {
		t.Error("Expected miss once older than the TTL")
	}

	if _, ok := cache.GetWithTTL(ctx, "", 1, "sig", 30*24*time.Hour); !ok {
		t.Error("Expected hit with a longer explicit TTL")
	}
}

func TestCache_LongerTTLOutlivesCacheTTL(t *testing.T) {
	kv := memory.NewKVStore(time.Millisecond)
	defer kv.Stop()
	cache := NewCache(kv, 20*time.Millisecond, nil)
	ctx := context.Background()

	cache.Set(ctx, "alice", 1, "sig", 700)
	time.Sleep(60 * time.Millisecond)

	if _, ok := cache.Get(ctx, "alice", 1, "sig"); ok {
		t.Error("Expected miss with the cache's own TTL")
	}
	if got, ok := cache.GetWithTTL(ctx, "alice", 1, "sig", time.Hour); !ok || got != 700 {
		t.Errorf("Expected hit with a longer TTL, got %v %v", got, ok)
	}
	if cache.Retention() != DefaultRetention {
		t.Errorf("Expected retention %v, got %v", DefaultRetention, cache.Retention())
	}
}

// slowStore is a plain KeyValueStore with a read latency, like a remote
// backend. It does not implement repository.Updater.
type slowStore struct {
	kv    *memory.KVStore
	delay time.Duration
}

func (s *slowStore) Get(ctx context.Context, key string) (string, error) {
	time.Sleep(s.delay)
	return s.kv.Get(ctx, key)
}

func (s *slowStore) Set(ctx context.Context, key, value string) error {
	return s.kv.Set(ctx, key, value)
}

func (s *slowStore) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}

func TestCache_ConcurrentSetsFromSeparateCaches(t *testing.T) {
	kv := memory.NewKVStore(0)
	defer kv.Stop()
	slow := &slowStore{kv: kv, delay: 2 * time.Millisecond}

	tests := []struct {
		name  string
		store repository.KeyValueStore
	}{
		{"Plain store", slow},
		{"Atomic store", kv},
		{"Namespaces over one profile", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			sc := tt.name
			const writers = 8

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(id int64) {
					defer wg.Done()
					store := tt.store
					if store == nil {
						store = repository.NewNamespace(slow, "profile:dev-1")
					}
					if err := NewCache(store, DefaultTTL, nil).Set(ctx, sc, id, "sig", float64(id)); err != nil {
						t.Errorf("Set(%d) failed: %v", id, err)
					}
				}(int64(i + 1))
			}
			wg.Wait()

			store := tt.store
			if store == nil {
				store = repository.NewNamespace(slow, "profile:dev-1")
			}
			reader := NewCache(store, DefaultTTL, nil)
			for id := int64(1); id <= writers; id++ {
				if got, ok := reader.Get(ctx, sc, id, "sig"); !ok || got != float64(id) {
					t.Errorf("Expected entry %d to survive, got %v %v", id, got, ok)
				}
			}
		})
	}
}

func TestCache_ScopesAreIsolated(t *testing.T) {
	kv := memory.NewKVStore(0)
	defer kv.Stop()
	cache := NewCache(kv, DefaultTTL, nil)
	ctx := context.Background()

	cache.Set(ctx, "alice", 1, "sig", 100)
	if _, ok := cache.Get(ctx, "bob", 1, "sig"); ok {
		t.Error("Expected bob not to read alice's distances")
	}
	if _, ok := cache.Get(ctx, "", 1, "sig"); ok {
		t.Error("Expected unscoped keyspace not to read alice's distances")
	}
}

func TestCache_CorruptBlobIsEmpty(t *testing.T) {
	kv := memory.NewKVStore(0)
	defer kv.Stop()
	cache := NewCache(kv, DefaultTTL, nil)
	ctx := context.Background()

	for _, raw := range []string{"{not json", "null", `[1,2]`, `{"1":"oops"}`} {
		kv.Set(ctx, scope.DistanceCacheKey("alice"), raw)
		if _, ok := cache.Get(ctx, "alice", 1, "sig"); ok {
			t.Errorf("Expected miss for corrupt blob %q", raw)
		}
	}

	// A write over a corrupt blob starts a fresh one.
	cache.Set(ctx, "alice", 1, "sig", 42)
	if got, ok := cache.Get(ctx, "alice", 1, "sig"); !ok || got != 42 {
		t.Errorf("Expected 42 after overwrite, got %v (%v)", got, ok)
	}
}

func TestCache_Clear(t *testing.T) {
	kv := memory.NewKVStore(0)
	defer kv.Stop()
	cache := NewCache(kv, DefaultTTL, nil)
	ctx := context.Background()

	cache.Set(ctx, "alice", 1, "sig", 100)
	cache.Set(ctx, "", 1, "sig", 100)
	cache.Set(ctx, "bob", 1, "sig", 100)

	cache.Clear(ctx, "alice")
	if _, ok := cache.Get(ctx, "alice", 1, "sig"); ok {
		t.Error("Expected alice's cache cleared")
	}
	if _, ok := cache.Get(ctx, "", 1, "sig"); ok {
		t.Error("Expected legacy cache cleared")
	}
	if _, ok := cache.Get(ctx, "bob", 1, "sig"); !ok {
		t.Error("Expected bob's cache untouched")
	}
}

func TestPlausibility_IsAnomalous(t *testing.T) {
	tests := []struct {
		name     string
		meters   float64
		fallback *float64
		expected bool
	}{
		{"No fallback", 600_000, nil, false},
		{"Huge jump from nearby", 600_000, floatPtr(500), true},
		{"Within floor", 4_800, floatPtr(500), false},
		{"Exactly at floor", 50_000, floatPtr(500), false},
		{"Factor dominates floor", 90_000, floatPtr(9_000), false},
		{"Beyond factor", 90_001, floatPtr(9_000), true},
		{"Fallback too far to judge", 600_000, floatPtr(10_001), false},
		{"Fallback at threshold", 600_000, floatPtr(10_000), true},
		{"Zero fallback", 600_000, floatPtr(0), false},
		{"Negative fallback", 600_000, floatPtr(-5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultPlausibility.IsAnomalous(tt.meters, tt.fallback); got != tt.expected {
				t.Errorf("IsAnomalous(%v) = %v, expected %v", tt.meters, got, tt.expected)
			}
		})
	}
}

func TestResolver_AnomalyReturnsFallbackWithoutCaching(t *testing.T) {
	routes := &fakeRoutes{meters: 600_000}
	resolver, cache, _, metrics := setupResolver(t, routes)
	ctx := context.Background()
	dest := entities.Destination{ID: 1, Name: "Pho 24", Address: "1 Le Loi", FallbackMeters: floatPtr(500)}

	meters, err := resolver.Resolve(ctx, "alice", origin, dest)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if meters != 500 {
		t.Errorf("Expected fallback 500, got %v", meters)
	}
	if _, ok := cache.Get(ctx, "alice", 1, Signature(origin, dest.Name, dest.Address)); ok {
		t.Error("Expected anomalous result not cached")
	}
	if got := testutil.ToFloat64(metrics.AnomalyFallbacks); got != 1 {
		t.Errorf("Expected 1 anomaly fallback recorded, got %v", got)
	}

	// Not cached, so the next call asks the route service again.
	resolver.Resolve(ctx, "alice", origin, dest)
	if routes.calls != 2 {
		t.Errorf("Expected 2 route calls, got %d", routes.calls)
	}
}

func TestResolver_PlausibleResultIsCached(t *testing.T) {
	routes := &fakeRoutes{meters: 4_800}
	resolver, cache, _, metrics := setupResolver(t, routes)
	ctx := context.Background()
	dest := entities.Destination{ID: 1, Name: "Pho 24", Address: "1 Le Loi", FallbackMeters: floatPtr(500)}

	res, err := resolver.ResolveDetailed(ctx, "alice", origin, dest)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Meters != 4_800 || res.Source != entities.DistanceSourceRoute {
		t.Errorf("Expected 4800 from route, got %+v", res)
	}
	if got, ok := cache.Get(ctx, "alice", 1, Signature(origin, dest.Name, dest.Address)); !ok || got != 4_800 {
		t.Errorf("Expected 4800 cached, got %v (%v)", got, ok)
	}

	res, _ = resolver.ResolveDetailed(ctx, "alice", origin, dest)
	if res.Source != entities.DistanceSourceCache || routes.calls != 1 {
		t.Errorf("Expected second resolve served from cache, got %+v after %d calls", res, routes.calls)
	}
	if got := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")); got != 1 {
		t.Errorf("Expected 1 cache hit recorded, got %v", got)
	}
}

func TestResolver_DestinationQuery(t *testing.T) {
	routes := &fakeRoutes{meters: 100}
	resolver, _, _, _ := setupResolver(t, routes)
	ctx := context.Background()

	resolver.Resolve(ctx, "", origin, entities.Destination{ID: 1, Name: "Pho 24", Address: "1 Le Loi"})
	resolver.Resolve(ctx, "", origin, entities.Destination{ID: 2, Name: "Banh Mi"})

	if len(routes.queries) != 2 || routes.queries[0] != "Pho 24, 1 Le Loi" || routes.queries[1] != "Banh Mi" {
		t.Errorf("Unexpected destination queries %q", routes.queries)
	}
}

func TestResolver_RouteErrorPropagates(t *testing.T) {
	routeErr := errors.New("no route found")
	resolver, cache, _, _ := setupResolver(t, &fakeRoutes{err: routeErr})
	ctx := context.Background()
	dest := entities.Destination{ID: 1, Name: "Pho 24", FallbackMeters: floatPtr(500)}

	if _, err := resolver.Resolve(ctx, "", origin, dest); !errors.Is(err, routeErr) {
		t.Fatalf("Expected route error, got %v", err)
	}
	if _, ok := cache.Get(ctx, "", 1, Signature(origin, dest.Name, "")); ok {
		t.Error("Expected nothing cached on error")
	}
}

func TestResolver_ResolveOrFallback(t *testing.T) {
	resolver, _, _, metrics := setupResolver(t, &fakeRoutes{err: errors.New("provider down")})
	ctx := context.Background()

	res, ok := resolver.ResolveOrFallback(ctx, "", origin, entities.Destination{ID: 1, Name: "A", FallbackMeters: floatPtr(750)})
	if !ok || res.Meters != 750 || res.Source != entities.DistanceSourceFallback {
		t.Errorf("Expected fallback 750, got %+v (%v)", res, ok)
	}
	if got := testutil.ToFloat64(metrics.CallSiteFallbacks); got != 1 {
		t.Errorf("Expected 1 error fallback recorded, got %v", got)
	}

	if _, ok := resolver.ResolveOrFallback(ctx, "", origin, entities.Destination{ID: 2, Name: "B"}); ok {
		t.Error("Expected ok=false without a fallback")
	}
}

func TestResolver_ConcurrentIdenticalLookupsShareOneRequest(t *testing.T) {
	routes := &fakeRoutes{meters: 1200, delay: 50 * time.Millisecond}
	resolver, _, _, _ := setupResolver(t, routes)
	dest := entities.Destination{ID: 1, Name: "Pho 24"}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m, err := resolver.Resolve(context.Background(), "alice", origin, dest); err != nil || m != 1200 {
				t.Errorf("Expected 1200, got %v (%v)", m, err)
			}
		}()
	}
	wg.Wait()

	if calls := atomic.LoadInt32(&routes.calls); calls != 1 {
		t.Errorf("Expected 1 route call, got %d", calls)
	}
}

func TestResolver_CancelledCallerReturnsPromptly(t *testing.T) {
	routes := &fakeRoutes{meters: 1200, delay: time.Second}
	resolver, _, _, _ := setupResolver(t, routes)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := resolver.Resolve(ctx, "", origin, entities.Destination{ID: 1, Name: "Pho"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Expected cancellation to abort the wait")
	}
}

func TestMapWithConcurrency_PreservesOrder(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	// Earlier items finish later, so completion order is reversed.
	delays := map[string]time.Duration{"a": 50, "b": 40, "c": 30, "d": 20, "e": 10}

	results, err := MapWithConcurrency(context.Background(), items, 2, func(ctx context.Context, s string) (string, error) {
		time.Sleep(delays[s] * time.Millisecond)
		return s + "!", nil
	})
	if err != nil {
		t.Fatalf("MapWithConcurrency failed: %v", err)
	}

	expected := []string{"a!", "b!", "c!", "d!", "e!"}
	for i := range expected {
		if results[i] != expected[i] {
			t.Errorf("results[%d] = %q, expected %q", i, results[i], expected[i])
		}
	}
}

func TestMapWithConcurrency_BoundsInFlight(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		expected int32
	}{
		{"Limit 3", 3, 3},
		{"Zero clamps to 1", 0, 1},
		{"Negative clamps to 1", -4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inFlight, peak int32
			items := make([]int, 12)

			_, err := MapWithConcurrency(context.Background(), items, tt.limit, func(ctx context.Context, _ int) (int, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return 0, nil
			})
			if err != nil {
				t.Fatalf("MapWithConcurrency failed: %v", err)
			}
			if peak != tt.expected {
				t.Errorf("Expected peak concurrency %d, got %d", tt.expected, peak)
			}
		})
	}
}

func TestMapWithConcurrency_FirstErrorWins(t *testing.T) {
	boom := errors.New("boom")
	var calls int32

	results, err := MapWithConcurrency(context.Background(), []int{1, 2, 3, 4, 5, 6}, 1, func(ctx context.Context, n int) (int, error) {
		atomic.AddInt32(&calls, 1)
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if results != nil {
		t.Errorf("Expected no partial results, got %v", results)
	}
	if calls != 2 {
		t.Errorf("Expected the batch to stop after the failure, got %d calls", calls)
	}
}

func TestMapWithConcurrency_Empty(t *testing.T) {
	results, err := MapWithConcurrency(context.Background(), []int{}, 3, func(ctx context.Context, n int) (int, error) {
		t.Error("mapper should not be called")
		return n, nil
	})
	if err != nil || len(results) != 0 {
		t.Errorf("Expected empty results, got %v (%v)", results, err)
	}
}

func TestStableHash32(t *testing.T) {
	tests := []struct {
		input    string
		expected int32
	}{
		{"", 0},
		{"a", 97},
		{"abc", 96354},
		{"hello", 99162322},
		// Wraps around like 32-bit integer arithmetic.
		{"polygenelubricants", -2147483648},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := StableHash32(tt.input); got != tt.expected {
				t.Errorf("StableHash32(%q) = %d, expected %d", tt.input, got, tt.expected)
			}
		})
	}

	if StableHash32("Pho 24") == StableHash32("Pho 25") {
		t.Error("Expected different names to hash differently")
	}
}
