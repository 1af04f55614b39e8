// ABOUTME: Blocking byte ring buffer between a writer and an audio callback
// ABOUTME: Writers wait for space, the callback never blocks and zero-fills on underrun
package output

import "sync"

// RingBuffer provides a thread-safe circular buffer of PCM bytes
type RingBuffer struct {
	mu       sync.Mutex
	space    *sync.Cond
	buffer   []byte
	readPos  int
	writePos int
	count    int // bytes currently in buffer
	closed   bool
}

// NewRingBuffer creates a ring buffer with given capacity in bytes
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	rb := &RingBuffer{buffer: make([]byte, capacity)}
	rb.space = sync.NewCond(&rb.mu)
	return rb
}

// Write copies all of p into the buffer, waiting for space as needed.
// It returns early with ErrNotOpen once the buffer is closed.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(p) {
		for rb.count == len(rb.buffer) && !rb.closed {
			rb.space.Wait()
		}
		if rb.closed {
			return written, ErrNotOpen
		}

		free := len(rb.buffer) - rb.count
		chunk := len(p) - written
		if chunk > free {
			chunk = free
		}
		// at most two copies around the wrap point
		first := copy(rb.buffer[rb.writePos:], p[written:written+chunk])
		if first < chunk {
			copy(rb.buffer, p[written+first:written+chunk])
		}
		rb.writePos = (rb.writePos + chunk) % len(rb.buffer)
		rb.count += chunk
		written += chunk
	}
	return written, nil
}

// Read fills p from the buffer without blocking and zero-fills the rest.
// It returns the number of buffered bytes copied.
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	if n > rb.count {
		n = rb.count
	}
	first := copy(p[:n], rb.buffer[rb.readPos:])
	if first < n {
		copy(p[first:n], rb.buffer)
	}
	rb.readPos = (rb.readPos + n) % len(rb.buffer)
	rb.count -= n

	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	if n > 0 {
		rb.space.Broadcast()
	}
	return n
}

// Len returns the number of bytes available to read
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free bytes in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buffer) - rb.count
}

// Reset discards buffered data
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos, rb.writePos, rb.count = 0, 0, 0
	rb.space.Broadcast()
}

// Close wakes blocked writers; later writes fail
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.space.Broadcast()
}
