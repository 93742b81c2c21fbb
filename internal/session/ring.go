package session

import "sync"

// Ring is a fixed-capacity FIFO buffer of timestamped samples feeding the
// scrolling live display. Once full, each push evicts the oldest sample.
// It is appended to from the sensor callback and read from the display
// path, so all access is serialized by a mutex.
type Ring struct {
	mu   sync.Mutex
	data []TimestampedSample
	head int
	size int
}

// NewRing creates a ring buffer with the given capacity. Capacities below
// one are treated as one.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{data: make([]TimestampedSample, capacity)}
}

// Push appends a sample, evicting the oldest one if the buffer is full.
func (r *Ring) Push(s TimestampedSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.size) % len(r.data)
	r.data[tail] = s
	if r.size < len(r.data) {
		r.size++
	} else {
		r.head = (r.head + 1) % len(r.data)
	}
}

// Samples returns a snapshot of the buffer contents, oldest first.
func (r *Ring) Samples() []TimestampedSample {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TimestampedSample, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.data[(r.head+i)%len(r.data)]
	}
	return out
}

// Latest returns the most recent sample, if any.
func (r *Ring) Latest() (TimestampedSample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return TimestampedSample{}, false
	}
	return r.data[(r.head+r.size-1)%len(r.data)], true
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int {
	return len(r.data)
}
