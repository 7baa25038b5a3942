package sandbox

import "sync"

// DefaultRingSize bounds in-memory capture of each output stream.
const DefaultRingSize = 1 << 20 // 1 MiB

// ringBuffer keeps the most recent max bytes written to it. Writes
// never block and never fail; old data is discarded from the front.
// Safe for one writer and concurrent readers.
type ringBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newRingBuffer(max int) *ringBuffer {
	if max <= 0 {
		max = DefaultRingSize
	}
	return &ringBuffer{max: max}
}

// Write implements io.Writer.
func (r *ringBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(p) >= r.max {
		r.buf = append(r.buf[:0], p[len(p)-r.max:]...)
		return len(p), nil
	}
	r.buf = append(r.buf, p...)
	if over := len(r.buf) - r.max; over > 0 {
		r.buf = append(r.buf[:0], r.buf[over:]...)
	}
	return len(p), nil
}

// Bytes returns a copy of the buffered data.
func (r *ringBuffer) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out
}

// Tail returns a copy of the last n bytes, or everything when fewer
// are buffered.
func (r *ringBuffer) Tail(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.buf) {
		n = len(r.buf)
	}
	out := make([]byte, n)
	copy(out, r.buf[len(r.buf)-n:])
	return out
}

// Len reports how many bytes are currently buffered.
func (r *ringBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}
