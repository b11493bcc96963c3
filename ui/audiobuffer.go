package ui

import (
	"errors"
	"io"
	"sync"
)

// ErrBufferClosed is returned by Write after Close.
var ErrBufferClosed = errors.New("audio buffer closed")

// AudioRingBuffer is a thread-safe byte ring between the synth producer and
// oto's player. The producer writes via Write(), oto reads via Read(). Both
// sides block: Read until data is available, Write until there is room, so
// no sample is ever dropped or duplicated.
type AudioRingBuffer struct {
	buf      []byte
	readPos  int
	writePos int
	count    int
	capacity int
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool
}

// NewAudioRingBuffer creates a ring buffer with the given capacity in bytes.
func NewAudioRingBuffer(capacity int) *AudioRingBuffer {
	rb := &AudioRingBuffer{
		buf:      make([]byte, capacity),
		capacity: capacity,
	}
	rb.notEmpty = sync.NewCond(&rb.mu)
	rb.notFull = sync.NewCond(&rb.mu)
	return rb
}

// Write implements io.Writer. It copies as much of p as fits, then waits
// for the reader to make room for the rest. Returns ErrBufferClosed with a
// short count if the buffer is closed while waiting.
func (rb *AudioRingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for len(p) > 0 {
		for rb.count == rb.capacity && !rb.closed {
			rb.notFull.Wait()
		}
		if rb.closed {
			return written, ErrBufferClosed
		}

		n := min(len(p), rb.capacity-rb.count)

		// Write data to buffer (may wrap around)
		firstChunk := rb.capacity - rb.writePos
		if firstChunk >= n {
			copy(rb.buf[rb.writePos:], p[:n])
		} else {
			copy(rb.buf[rb.writePos:], p[:firstChunk])
			copy(rb.buf[0:], p[firstChunk:n])
		}
		rb.writePos = (rb.writePos + n) % rb.capacity
		rb.count += n
		written += n
		p = p[n:]

		rb.notEmpty.Signal()
	}
	return written, nil
}

// Read implements io.Reader. Blocks until data is available or the buffer
// is closed. Returns io.EOF when closed and empty.
func (rb *AudioRingBuffer) Read(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.count == 0 {
		if rb.closed {
			return 0, io.EOF
		}
		rb.notEmpty.Wait()
	}

	n := min(len(p), rb.count)

	// Copy data from buffer (may wrap around)
	firstChunk := rb.capacity - rb.readPos
	if firstChunk >= n {
		copy(p, rb.buf[rb.readPos:rb.readPos+n])
	} else {
		copy(p, rb.buf[rb.readPos:])
		copy(p[firstChunk:], rb.buf[:n-firstChunk])
	}
	rb.readPos = (rb.readPos + n) % rb.capacity
	rb.count -= n

	rb.notFull.Signal()
	return n, nil
}

// Buffered returns the number of bytes currently in the buffer.
func (rb *AudioRingBuffer) Buffered() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of bytes that can be written without blocking.
func (rb *AudioRingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.capacity - rb.count
}

// Clear resets the buffer, discarding all data, and wakes blocked writers.
func (rb *AudioRingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.writePos = 0
	rb.count = 0
	rb.notFull.Broadcast()
}

// Close signals shutdown. Subsequent Reads return io.EOF once the buffer
// is drained and Writes fail. Unblocks any goroutines waiting on either
// side.
func (rb *AudioRingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.notEmpty.Broadcast()
	rb.notFull.Broadcast()
}
