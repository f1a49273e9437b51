package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memStore struct {
	mu    sync.Mutex
	data  map[string]map[string]Entry
	loads int
	saves int
}

func newMemStore() *memStore { return &memStore{data: make(map[string]map[string]Entry)} }

func (m *memStore) Load(_ context.Context, ns string) (map[string]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	out := make(map[string]Entry)
	for k, v := range m.data[ns] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(_ context.Context, ns string, entries map[string]Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.data[ns] = entries
	return nil
}

func TestTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := New(Config{Clock: clock.Now, Logger: zap.NewNop()})

	if err := svc.Set("predictions", "k", map[string]int{"v": 1}, time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	var got map[string]int
	ok, err := svc.Get("predictions", "k", &got)
	if err != nil || !ok || got["v"] != 1 {
		t.Fatalf("immediate Get = %v, %v, %v", got, ok, err)
	}

	clock.Advance(2 * time.Second)
	ok, err = svc.Get("predictions", "k", &got)
	if err != nil || ok {
		t.Fatalf("expected miss after TTL, got ok=%v err=%v", ok, err)
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := New(Config{Clock: clock.Now})
	svc.Set("ns", "k", "forever", 0)
	clock.Advance(365 * 24 * time.Hour)

	var got string
	if ok, _ := svc.Get("ns", "k", &got); !ok || got != "forever" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	svc := New(Config{})
	svc.Set("a", "k", 1, 0)
	var v int
	if ok, _ := svc.Get("b", "k", &v); ok {
		t.Fatal("namespace b must not see a's key")
	}
}

func TestLoadOncePerNamespace(t *testing.T) {
	store := newMemStore()
	store.data["ns"] = map[string]Entry{"old": {Value: []byte(`"persisted"`)}}
	svc := New(Config{Store: store})

	var s string
	for i := 0; i < 3; i++ {
		if ok, _ := svc.Get("ns", "old", &s); !ok || s != "persisted" {
			t.Fatalf("Get = %q, %v", s, ok)
		}
	}
	svc.Set("ns", "new", "x", 0)
	if store.loads != 1 {
		t.Errorf("store loaded %d times, want 1", store.loads)
	}
	if store.saves != 0 {
		t.Errorf("Set must not write through, saves = %d", store.saves)
	}
}

func TestFlushOnlyDirty(t *testing.T) {
	store := newMemStore()
	svc := New(Config{Store: store})
	svc.Set("a", "k", 1, 0)
	var v int
	svc.Get("b", "k", &v)

	if err := svc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1 (only dirty namespace)", store.saves)
	}
	if err := svc.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	if store.saves != 1 {
		t.Errorf("clean namespace re-saved, saves = %d", store.saves)
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	store := newMemStore()
	svc := New(Config{Store: store, FlushInterval: time.Hour})
	svc.Set("a", "k", 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want final flush", store.saves)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	svc := New(Config{Store: fs, Clock: clock.Now})
	svc.Set("predict/game", "x", map[string]float64{"p": 0.583}, time.Hour)
	if err := svc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}

	reloaded := New(Config{Store: fs, Clock: clock.Now})
	var got map[string]float64
	if ok, err := reloaded.Get("predict/game", "x", &got); err != nil || !ok || got["p"] != 0.583 {
		t.Fatalf("reloaded Get = %v, %v, %v", got, ok, err)
	}
}

func TestFileStore_CorruptIsEmpty(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFileStore(dir)
	if err := os.WriteFile(fs.path("ns"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := New(Config{Store: fs, Logger: zap.NewNop()})
	var v int
	ok, err := svc.Get("ns", "k", &v)
	if err != nil || ok {
		t.Fatalf("corrupt store should read as empty, got ok=%v err=%v", ok, err)
	}
	if err := svc.Set("ns", "k", 5, 0); err != nil {
		t.Fatalf("Set after corrupt load failed: %v", err)
	}
	if err := svc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	entries, err := fs.Load(context.Background(), "ns")
	if err != nil || len(entries) != 1 {
		t.Fatalf("rewritten file = %v, %v", entries, err)
	}
}

type mockRedis struct {
	data map[string]string
}

func (m *mockRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func TestRedisStore(t *testing.T) {
	client := &mockRedis{data: map[string]string{"forecast:cache:bad": "garbage"}}
	store := NewRedisStore(client, "")

	entries, err := store.Load(context.Background(), "missing")
	if err != nil || len(entries) != 0 {
		t.Fatalf("missing namespace = %v, %v", entries, err)
	}
	if entries, err := store.Load(context.Background(), "bad"); err == nil || len(entries) != 0 {
		t.Fatalf("corrupt namespace = %v, %v", entries, err)
	}

	svc := New(Config{Store: store})
	svc.Set("ns", "k", "v", 0)
	if err := svc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if _, ok := client.data["forecast:cache:ns"]; !ok {
		t.Fatal("namespace not written to redis")
	}

	reloaded := New(Config{Store: store})
	var got string
	if ok, _ := reloaded.Get("ns", "k", &got); !ok || got != "v" {
		t.Fatalf("reloaded Get = %q, %v", got, ok)
	}
}

func TestConcurrentAccess(t *testing.T) {
	svc := New(Config{Store: newMemStore()})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ns := []string{"a", "b"}[i%2]
			for j := 0; j < 100; j++ {
				svc.Set(ns, "k", j, time.Minute)
				var v int
				svc.Get(ns, "k", &v)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			svc.Flush(context.Background())
		}
	}()
	wg.Wait()
}
