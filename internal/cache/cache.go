// Package cache is a namespaced, TTL-bounded key/value memo with periodic
// persistence. Reads and writes touch memory only; each namespace is loaded
// from its Store on first access and written back when dirty.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_cache_hits_total",
		Help: "Cache hits by namespace",
	}, []string{"namespace"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_cache_misses_total",
		Help: "Cache misses by namespace",
	}, []string{"namespace"})

	cacheFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_cache_flushes_total",
		Help: "Namespace flushes to the backing store",
	}, []string{"result"})
)

// Clock returns the current time.
type Clock func() time.Time

// Entry is one persisted value. ExpiresAt is epoch seconds, nil for no expiry.
type Entry struct {
	ExpiresAt *float64        `json:"expires_at,omitempty"`
	Value     json.RawMessage `json:"value"`
}

// Store persists whole namespaces.
type Store interface {
	// Load returns the namespace's entries. A missing or unreadable
	// namespace is returned as empty with a non-nil error for logging.
	Load(ctx context.Context, namespace string) (map[string]Entry, error)
	Save(ctx context.Context, namespace string, entries map[string]Entry) error
}

// Config configures the cache service
type Config struct {
	Store         Store
	Clock         Clock
	FlushInterval time.Duration
	Logger        *zap.Logger
}

type namespace struct {
	mu      sync.Mutex
	entries map[string]Entry
	loaded  bool
	dirty   bool
}

// Service is the process-wide cache.
type Service struct {
	store         Store
	clock         Clock
	flushInterval time.Duration
	logger        *zap.SugaredLogger

	mu         sync.Mutex
	namespaces map[string]*namespace
}

// New creates a cache service
func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		store:         cfg.Store,
		clock:         cfg.Clock,
		flushInterval: cfg.FlushInterval,
		logger:        cfg.Logger.Sugar(),
		namespaces:    make(map[string]*namespace),
	}
}

// ns returns the namespace record, creating it under the registry lock.
func (s *Service) ns(name string) *namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.namespaces[name]
	if !ok {
		n = &namespace{entries: make(map[string]Entry)}
		s.namespaces[name] = n
	}
	return n
}

// ensureLoaded reads the namespace from the store once. Callers hold n.mu.
func (s *Service) ensureLoaded(ctx context.Context, name string, n *namespace) {
	if n.loaded {
		return
	}
	n.loaded = true
	if s.store == nil {
		return
	}
	entries, err := s.store.Load(ctx, name)
	if err != nil {
		s.logger.Warnw("Cache namespace unreadable, starting empty", "namespace", name, "error", err)
	}
	// Writes made before the load win over persisted values.
	for k, e := range entries {
		if _, ok := n.entries[k]; !ok {
			n.entries[k] = e
		}
	}
}

// Get decodes the cached value into dst. Expired entries are removed and
// reported as a miss.
func (s *Service) Get(namespace, key string, dst any) (bool, error) {
	n := s.ns(namespace)
	n.mu.Lock()
	s.ensureLoaded(context.Background(), namespace, n)
	e, ok := n.entries[key]
	if ok && e.ExpiresAt != nil && float64(s.clock().UnixNano())/1e9 >= *e.ExpiresAt {
		delete(n.entries, key)
		n.dirty = true
		ok = false
	}
	n.mu.Unlock()

	if !ok {
		cacheMisses.WithLabelValues(namespace).Inc()
		return false, nil
	}
	cacheHits.WithLabelValues(namespace).Inc()
	if err := json.Unmarshal(e.Value, dst); err != nil {
		return false, fmt.Errorf("decoding cached %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

// Set stores value under key. A ttl of zero never expires.
func (s *Service) Set(namespace, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", namespace, key, err)
	}
	e := Entry{Value: raw}
	if ttl > 0 {
		exp := float64(s.clock().Add(ttl).UnixNano()) / 1e9
		e.ExpiresAt = &exp
	}

	n := s.ns(namespace)
	n.mu.Lock()
	s.ensureLoaded(context.Background(), namespace, n)
	n.entries[key] = e
	n.dirty = true
	n.mu.Unlock()
	return nil
}

// Flush writes every dirty namespace to the store.
func (s *Service) Flush(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	names := make([]string, 0, len(s.namespaces))
	spaces := make([]*namespace, 0, len(s.namespaces))
	for name, n := range s.namespaces {
		names = append(names, name)
		spaces = append(spaces, n)
	}
	s.mu.Unlock()

	var firstErr error
	for i, n := range spaces {
		n.mu.Lock()
		if !n.dirty {
			n.mu.Unlock()
			continue
		}
		snapshot := make(map[string]Entry, len(n.entries))
		for k, e := range n.entries {
			snapshot[k] = e
		}
		n.dirty = false
		n.mu.Unlock()

		if err := s.store.Save(ctx, names[i], snapshot); err != nil {
			cacheFlushes.WithLabelValues("error").Inc()
			s.logger.Errorw("Cache flush failed", "namespace", names[i], "error", err)
			n.mu.Lock()
			n.dirty = true
			n.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		cacheFlushes.WithLabelValues("ok").Inc()
	}
	return firstErr
}

// Run flushes on the configured interval until ctx is done, then performs
// a final flush.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Flush(final); err != nil {
				s.logger.Errorw("Final cache flush failed", "error", err)
			}
			cancel()
			return
		}
	}
}
