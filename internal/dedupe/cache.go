package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/dwkim-hr/intervox/internal/metrics"
	"github.com/dwkim-hr/intervox/pkg/logger"
)

// entry is a single in-flight operation shared by every caller for its key
type entry[V any] struct {
	done      chan struct{}
	val       V
	err       error
	createdAt time.Time
}

// Cache deduplicates concurrent asynchronous operations by key: while an
// operation for a key is in flight, additional callers attach to it instead
// of starting their own. The entry is removed as soon as the operation
// settles, so a later call re-invokes the operation. Results are never
// retained past the in-flight window.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	logger  *logger.Logger
}

// New creates an empty cache. Instances are meant to be scoped (one per
// service or session) rather than process-wide.
func New[V any](log *logger.Logger) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		logger:  log.Named("dedupe"),
	}
}

// Do invokes fn at most once per key while a previous invocation for that
// key is still pending. Every concurrent caller receives the same value or
// the same error. The operation serves every attached waiter, so it is
// detached from the initiating caller's cancellation; each caller's own
// context still bounds how long that caller waits.
func (c *Cache[V]) Do(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		metrics.RecordCacheHit()
		c.logger.Debug("Joining in-flight operation", logger.String("key", key))
		return c.wait(ctx, e)
	}

	e := &entry[V]{
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	c.entries[key] = e
	c.mu.Unlock()

	metrics.RecordCacheMiss()
	c.logger.Debug("Starting operation", logger.String("key", key))

	go func() {
		val, err := fn(context.WithoutCancel(ctx))

		// Remove the entry before signaling completion so a caller woken by
		// done that immediately re-issues the key starts a fresh operation.
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()

		e.val = val
		e.err = err
		close(e.done)
	}()

	return c.wait(ctx, e)
}

// wait blocks until the entry settles or the caller's context is done. The
// operation itself is not canceled when a single waiter gives up; other
// waiters may still want the result.
func (c *Cache[V]) wait(ctx context.Context, e *entry[V]) (V, error) {
	select {
	case <-e.done:
		return e.val, e.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Forget drops the in-flight entry for key, if any. Waiters already attached
// still receive the eventual result; new callers start a fresh operation.
func (c *Cache[V]) Forget(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of operations currently in flight
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
