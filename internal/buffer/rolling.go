package buffer

import (
	"sort"
	"sync"
	"time"
)

// Rolling is a bounded, newest-first collection of transcript results. Push
// prepends; once capacity is exceeded the oldest (tail) entry is dropped.
// Display order is arrival order, not capture order — SortedByCapture gives
// a temporally ordered view without changing the eviction policy.
type Rolling[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
}

// NewRolling creates a buffer holding at most capacity items
func NewRolling[T any](capacity int) *Rolling[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Rolling[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push inserts item at the front, evicting the tail entry if the buffer is
// already full
func (b *Rolling[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) >= b.capacity {
		b.items = b.items[:b.capacity-1]
	}
	b.items = append([]T{item}, b.items...)
}

// Items returns a snapshot in arrival order, newest first
func (b *Rolling[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// SortedByCapture returns a snapshot ordered by the capture timestamp
// extracted by ts, newest first. Eviction still follows arrival recency.
func (b *Rolling[T]) SortedByCapture(ts func(T) time.Time) []T {
	out := b.Items()
	sort.SliceStable(out, func(i, j int) bool {
		return ts(out[i]).After(ts(out[j]))
	})
	return out
}

// Remove deletes the first item for which match returns true, preserving the
// relative order of the rest. Returns whether an item was removed.
func (b *Rolling[T]) Remove(match func(T) bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, item := range b.items {
		if match(item) {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the buffer in a single step
func (b *Rolling[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}

// Len returns the current number of items
func (b *Rolling[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Capacity returns the maximum number of items the buffer retains
func (b *Rolling[T]) Capacity() int {
	return b.capacity
}
