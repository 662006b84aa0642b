package executor

import "sync"

// captureBuffer is a thread-safe circular buffer for child output. When the
// bound is exceeded the oldest bytes drop first and the buffer remembers
// that it truncated. stdout and stderr of the child share one buffer, so
// writes interleave in arrival order.
type captureBuffer struct {
	data      []byte
	size      int
	head      int
	tail      int
	full      bool
	truncated bool
	mu        sync.Mutex
}

func newCaptureBuffer(size int) *captureBuffer {
	return &captureBuffer{
		data: make([]byte, size),
		size: size,
	}
}

// Write implements io.Writer. It never fails; overflow drops oldest bytes.
func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range p {
		b.data[b.tail] = c
		b.tail = (b.tail + 1) % b.size

		if b.full {
			b.head = b.tail
			b.truncated = true
		} else if b.tail == b.head {
			b.full = true
		}
	}

	return len(p), nil
}

// Bytes returns the captured output in write order.
func (b *captureBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full && b.head == b.tail {
		return nil
	}

	if !b.full && b.tail > b.head {
		out := make([]byte, b.tail-b.head)
		copy(out, b.data[b.head:b.tail])
		return out
	}

	// Wrapped
	first := b.data[b.head:]
	second := b.data[:b.tail]
	out := make([]byte, len(first)+len(second))
	copy(out, first)
	copy(out[len(first):], second)
	return out
}

// Truncated reports whether any bytes were dropped.
func (b *captureBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
