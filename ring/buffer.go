// Package ring implements the fixed-capacity byte queues that sit between a
// device's interrupt handlers and the application read/write paths.
package ring

import "sync/atomic"

// MaxCapacity is the largest supported capacity. Indices stay in a compact
// unsigned range and one slot is lost to head/tail collision detection, so
// at most MaxCapacity-1 bytes can be queued.
const MaxCapacity = 255

// Buffer is a single-producer/single-consumer circular byte queue.
//
// Both indices count down from the top slot and wrap back to the top when
// slot zero is passed. The head is left pointing at the slot most recently
// written and the tail at the slot most recently read, so head == tail means
// the buffer is empty. A write that would move the head onto the tail means
// the buffer is full and is rejected.
//
// The producer only ever stores head and the consumer only ever stores tail.
// Each side moves the byte first and publishes its index second; that order
// is what makes the queue safe without a lock.
type Buffer struct {
	buf  []byte
	size uint32
	head uint32 // atomic, written by the producer
	tail uint32 // atomic, written by the consumer
}

// New creates a Buffer holding capacity slots (capacity-1 usable).
// Capacity must be between 2 and MaxCapacity.
func New(capacity int) *Buffer {
	if capacity < 2 || capacity > MaxCapacity {
		panic("ring: capacity out of range")
	}
	return &Buffer{
		buf:  make([]byte, capacity),
		size: uint32(capacity),
	}
}

// prev returns the index below i, wrapping from zero to the top slot.
func (r *Buffer) prev(i uint32) uint32 {
	if i == 0 {
		return r.size - 1
	}
	return i - 1
}

// TryEnqueue appends b. It returns false, leaving the buffer untouched,
// when the buffer is full. Producer side only.
func (r *Buffer) TryEnqueue(b byte) bool {
	head := atomic.LoadUint32(&r.head)
	next := r.prev(head)
	if next == atomic.LoadUint32(&r.tail) {
		return false
	}
	r.buf[next] = b
	atomic.StoreUint32(&r.head, next)
	return true
}

// TryDequeue removes the oldest byte. Empty is reported with ok == false.
// Consumer side only.
func (r *Buffer) TryDequeue() (b byte, ok bool) {
	tail := atomic.LoadUint32(&r.tail)
	if tail == atomic.LoadUint32(&r.head) {
		return 0, false
	}
	next := r.prev(tail)
	b = r.buf[next]
	atomic.StoreUint32(&r.tail, next)
	return b, true
}

// Used returns the number of bytes waiting to be read
func (r *Buffer) Used() int {
	head := atomic.LoadUint32(&r.head)
	tail := atomic.LoadUint32(&r.tail)
	return int((tail + r.size - head) % r.size)
}

// Free returns the number of bytes that can still be enqueued
func (r *Buffer) Free() int {
	return int(r.size) - 1 - r.Used()
}

// Cap returns the number of usable slots
func (r *Buffer) Cap() int {
	return int(r.size) - 1
}

// IsEmpty returns true if there is nothing to read
func (r *Buffer) IsEmpty() bool {
	return atomic.LoadUint32(&r.head) == atomic.LoadUint32(&r.tail)
}

// IsFull returns true if the next enqueue would be rejected
func (r *Buffer) IsFull() bool {
	return r.prev(atomic.LoadUint32(&r.head)) == atomic.LoadUint32(&r.tail)
}
