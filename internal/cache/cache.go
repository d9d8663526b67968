package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}

// Loader fronts a Cache with a load function. Concurrent misses for the same
// key share one load. A value loaded across an Invalidate of its key is
// returned to its callers but never stored.
type Loader[T any] struct {
	cache Cache[T]
	group singleflight.Group

	// pending holds only keys with a load in flight.
	mu      sync.Mutex
	pending map[string]*pendingLoad
}

type pendingLoad struct {
	stale bool
}

// NewLoader wraps c.
func NewLoader[T any](c Cache[T]) *Loader[T] {
	return &Loader[T]{cache: c, pending: make(map[string]*pendingLoad)}
}

// Get returns the cached value for key, calling load on a miss.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		p := &pendingLoad{}
		l.mu.Lock()
		l.pending[key] = p
		l.mu.Unlock()

		data, err := load(ctx)

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.pending[key] == p {
			delete(l.pending, key)
		}
		if err != nil {
			return data, err
		}
		if !p.stale {
			l.cache.Set(key, data)
		}
		return data, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops key and detaches any in-flight load for it.
func (l *Loader[T]) Invalidate(key string) {
	l.mu.Lock()
	if p, ok := l.pending[key]; ok {
		p.stale = true
		delete(l.pending, key)
	}
	l.cache.Delete(key)
	l.mu.Unlock()
	l.group.Forget(key)
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
	started     bool
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// NewManager creates a new cache manager
func NewManager() *Manager {
	return &Manager{
		caches:      make([]Cleaner, 0),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			totalCleaned := 0
			for _, cache := range m.caches {
				totalCleaned += cache.CleanExpired()
			}
			if totalCleaned > 0 {
				slog.Debug("Expired cache entries removed", "component", "cache", "count", totalCleaned)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine. It is safe to call more than
// once and before StartCleanup.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
		if m.started {
			<-m.cleanupDone
		}
	})
}
