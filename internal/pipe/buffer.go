// Package pipe provides the queue between the ingestion engine and its
// consumers (the persister and the notifier), which drain announcement
// events at their own pace.
package pipe

import "sync"

// Buffer is a thread-safe FIFO that doubles its capacity when it fills.
// Sends never block; receives block until an item arrives or the buffer is
// closed.
type Buffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	tail   int
	count  int
	closed bool
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer[T any](initial int) *Buffer[T] {
	if initial < 1 {
		initial = 1
	}
	b := &Buffer[T]{items: make([]T, initial)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send enqueues an item, growing the buffer if it is full.
// Returns false once the buffer is closed.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if b.count == len(b.items) {
		b.grow()
	}

	b.items[b.tail] = item
	b.tail = (b.tail + 1) % len(b.items)
	b.count++

	b.cond.Signal()
	return true
}

// Receive dequeues an item, blocking until one is available.
// Returns false when the buffer is closed and drained.
func (b *Buffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// TryReceive dequeues without blocking.
func (b *Buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// Drain removes up to max items (all of them when max <= 0).
func (b *Buffer[T]) Drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close marks the buffer closed. Pending items remain receivable.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// pop removes the head item. Caller holds the lock and guarantees count > 0.
func (b *Buffer[T]) pop() T {
	item := b.items[b.head]
	var zero T
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.count--
	return item
}

// grow doubles capacity, unwrapping the ring. Caller holds the lock.
func (b *Buffer[T]) grow() {
	next := make([]T, len(b.items)*2)
	if b.head < b.tail {
		copy(next, b.items[b.head:b.tail])
	} else if b.count > 0 {
		n := copy(next, b.items[b.head:])
		copy(next[n:], b.items[:b.tail])
	}
	b.items = next
	b.head = 0
	b.tail = b.count
}
