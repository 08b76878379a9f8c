// Package history keeps a bounded, in-memory record of recent values.
package history

import "sync"

// DefaultCapacity matches the number of samples the monitor retains.
const DefaultCapacity = 1000

// Ring is a fixed-capacity buffer that evicts the oldest value on overflow.
// One writer and any number of readers may use it concurrently; readers get
// copies, never a reference into the buffer.
type Ring[T any] struct {
	mu    sync.RWMutex
	buf   []T
	start int // index of the oldest value
	n     int
	total uint64
}

// New returns an empty ring. A non-positive capacity uses DefaultCapacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append adds v, evicting the oldest value when full.
func (r *Ring[T]) Append(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
	} else {
		r.buf[r.start] = v
		r.start = (r.start + 1) % len(r.buf)
	}
	r.total++
}

// Recent returns up to n of the newest values, oldest first. n <= 0 returns
// everything held.
func (r *Ring[T]) Recent(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.n {
		n = r.n
	}
	out := make([]T, n)
	first := r.start + r.n - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(first+i)%len(r.buf)]
	}
	return out
}

// Len is the number of values currently held.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

// Cap is the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Total counts every Append, including evicted values.
func (r *Ring[T]) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}
