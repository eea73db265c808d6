package audio

import "sync"

// Ring keeps the most recent samples written by a capture callback so the
// sampling loop can read the latest window at its own pace.
type Ring struct {
	mu   sync.Mutex
	buf  []float32
	pos  int
	full bool
}

// NewRing creates a ring holding size samples.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{buf: make([]float32, size)}
}

// Write appends samples, overwriting the oldest ones.
func (r *Ring) Write(samples []float32) {
	r.mu.Lock()
	for _, s := range samples {
		r.buf[r.pos] = s
		r.pos = (r.pos + 1) % len(r.buf)
		if r.pos == 0 {
			r.full = true
		}
	}
	r.mu.Unlock()
}

// Latest copies the newest len(dst) samples into dst in chronological order.
// Slots never written are zero.
func (r *Ring) Latest(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(dst)
	size := len(r.buf)
	if n > size {
		for i := range dst[:n-size] {
			dst[i] = 0
		}
		dst = dst[n-size:]
		n = size
	}
	start := (r.pos - n + size) % size
	for i := 0; i < n; i++ {
		idx := (start + i) % size
		if !r.full && idx >= r.pos {
			dst[i] = 0
			continue
		}
		dst[i] = r.buf[idx]
	}
}
