// Package circular provides a fixed-capacity, lock-free ring buffer for
// exactly one producer and one consumer.
//
// The producer is expected to be a real-time audio callback, so Write never
// blocks and never refuses data: when the consumer falls behind, the oldest
// unread elements are discarded to make room (overrun). Read never blocks
// either: it returns whatever is available, possibly nothing (underrun).
//
// # Positions
//
// The buffer keeps two monotonically increasing 64-bit positions, writePos
// and readPos. The physical slot of a position is position % capacity, so
// capacity does not need to be a power of two. Available is writePos-readPos.
//
// writePos is only ever stored by the producer. readPos is advanced by the
// consumer after a read, and by the producer when it overwrites unread data,
// so both sides update it with compare-and-swap. readPos never passes the
// published writePos and never moves backwards.
//
// # Memory ordering
//
// Go's sync/atomic operations are sequentially consistent. The producer
// copies elements into the slots first and publishes them with
// writePos.Store; the consumer loads writePos before copying them out. The
// producer advances readPos before it overwrites a slot, so a consumer that
// was copying that slot fails its compare-and-swap and retries from the new
// position instead of returning overwritten data.
//
// Thread assignment:
//   - Write: producer only
//   - Read, Reset: consumer only
//   - Available, Free, Cap, Overruns: either side
package circular

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// MaxCapacity is the largest number of elements a Buffer may hold.
const MaxCapacity = 1 << 30

var (
	// ErrInvalidCapacity is returned by New for a capacity <= 0.
	ErrInvalidCapacity = errors.New("circular: capacity must be positive")
	// ErrAllocationFailed is returned by New when the backing storage
	// cannot be allocated.
	ErrAllocationFailed = errors.New("circular: allocation failed")
)

// Buffer is a lock-free single-producer, single-consumer ring buffer with
// an overwrite-oldest overrun policy.
type Buffer[T any] struct {
	// Separate cache lines to prevent false sharing between producer and consumer.
	writePos atomic.Uint64
	_pad1    [56]byte
	readPos  atomic.Uint64
	_pad2    [56]byte
	overruns atomic.Uint64

	buf []T
}

// New allocates a Buffer holding exactly capacity elements.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: capacity %d exceeds %d", ErrAllocationFailed, capacity, MaxCapacity)
	}
	return &Buffer[T]{buf: make([]T, capacity)}, nil
}

// Write copies p into the buffer and returns len(p).
//
// If p does not fit into Free, the oldest unread elements are discarded.
// If p is longer than the capacity, only its last Cap elements are kept.
// Non-blocking. Only call from the producer.
func (b *Buffer[T]) Write(p []T) int {
	total := len(p)
	if total == 0 || b.buf == nil {
		return 0
	}
	size := uint64(len(b.buf))

	w := b.writePos.Load()
	published := w
	n := uint64(total)
	if n > size {
		// The head of p would be overwritten by its own tail.
		w += n - size
		p = p[n-size:]
		n = size
	}
	end := w + n
	var floor uint64 // oldest position still in the buffer after this write
	if end > size {
		floor = end - size
	}

	// Push the reader past every slot this write is about to overwrite,
	// but never past the published writePos.
	b.advanceReader(min(floor, published))

	pos := w % size
	// Copy in one or two segments depending on wrap-around
	first := size - pos
	if first >= n {
		copy(b.buf[pos:pos+n], p)
	} else {
		copy(b.buf[pos:], p[:first])
		copy(b.buf[:n-first], p[first:])
	}

	b.writePos.Store(end)
	// An oversize write also dropped its own head, which the reader may
	// skip only now that end is published.
	b.advanceReader(floor)
	return total
}

// advanceReader moves readPos forward to target, counting the skipped
// elements as overruns. readPos never moves backwards.
func (b *Buffer[T]) advanceReader(target uint64) {
	for {
		r := b.readPos.Load()
		if int64(target-r) <= 0 {
			return
		}
		if b.readPos.CompareAndSwap(r, target) {
			b.overruns.Add(target - r)
			return
		}
	}
}

// Read copies up to len(p) elements out of the buffer and returns the
// number copied. It returns 0 when the buffer is empty.
// Non-blocking. Only call from the consumer.
func (b *Buffer[T]) Read(p []T) int {
	if len(p) == 0 || b.buf == nil {
		return 0
	}
	size := uint64(len(b.buf))

	for {
		r := b.readPos.Load()
		w := b.writePos.Load()

		available := w - r
		if int64(available) < 0 || available > size {
			// The producer moved on between the two loads or is about to
			// skip the head of an oversize write.
			continue
		}
		if available == 0 {
			return 0
		}

		n := uint64(len(p))
		if n > available {
			n = available
		}

		pos := r % size
		first := size - pos
		if first >= n {
			copy(p[:n], b.buf[pos:pos+n])
		} else {
			copy(p[:first], b.buf[pos:])
			copy(p[first:n], b.buf[:n-first])
		}

		if b.readPos.CompareAndSwap(r, r+n) {
			return int(n)
		}
	}
}

// Reset discards all unread elements. Only call from the consumer.
func (b *Buffer[T]) Reset() {
	for {
		r := b.readPos.Load()
		w := b.writePos.Load()
		if r == w || b.readPos.CompareAndSwap(r, w) {
			return
		}
	}
}

// Available returns the number of elements ready to be read.
func (b *Buffer[T]) Available() int {
	if b.buf == nil {
		return 0
	}
	// readPos never exceeds writePos, so loading it first keeps the
	// difference non-negative.
	r := b.readPos.Load()
	w := b.writePos.Load()
	d := w - r
	if size := uint64(len(b.buf)); d > size {
		d = size
	}
	return int(d)
}

// Free returns the number of elements that can be written without
// discarding unread data.
func (b *Buffer[T]) Free() int {
	return len(b.buf) - b.Available()
}

// Cap returns the buffer capacity in elements.
func (b *Buffer[T]) Cap() int {
	return len(b.buf)
}

// Overruns returns the total number of elements discarded because the
// producer overwrote data the consumer had not read yet.
func (b *Buffer[T]) Overruns() uint64 {
	return b.overruns.Load()
}

// Close releases the backing storage. After Close, Write and Read return 0.
// Close must only be called once producer and consumer have both stopped.
func (b *Buffer[T]) Close() {
	b.buf = nil
	b.writePos.Store(0)
	b.readPos.Store(0)
}
