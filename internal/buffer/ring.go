// ABOUTME: Fixed-capacity sample ring buffer
// ABOUTME: Single-producer single-consumer, no locking, no reallocation
package buffer

// RingCapacity is the default backing store size: 4 MiB of 32-bit samples.
const RingCapacity = (4 * 1024 * 1024) / 4

// Ring is a bounded circular buffer of interleaved samples. Write never
// blocks and never overwrites unread data; running out of vacancy is a
// normal condition, not a failure. The cursors are monotonic 64-bit
// counters so the arithmetic stays valid even if producer and consumer
// are later split across goroutines.
type Ring struct {
	buf   []int32
	read  uint64
	write uint64
}

// NewRing creates a ring with the given fixed capacity in samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = RingCapacity
	}
	return &Ring{buf: make([]int32, capacity)}
}

// Cap returns the fixed capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of unread samples.
func (r *Ring) Len() int { return int(r.write - r.read) }

// Vacancy returns how many samples Write would currently accept.
func (r *Ring) Vacancy() int { return len(r.buf) - r.Len() }

// Write copies as many samples as fit and returns the count accepted.
// Overflow samples remain the caller's responsibility.
func (r *Ring) Write(samples []int32) int {
	n := r.Vacancy()
	if n > len(samples) {
		n = len(samples)
	}
	if n == 0 {
		return 0
	}

	pos := int(r.write % uint64(len(r.buf)))
	copied := copy(r.buf[pos:], samples[:n])
	if copied < n {
		copy(r.buf, samples[copied:n])
	}
	r.write += uint64(n)
	return n
}

// ReadAvailable exposes the unread samples without copying, as up to two
// contiguous slices: the run up to the end of the backing store, then the
// wrapped remainder. Either may be empty.
func (r *Ring) ReadAvailable() (front, wrapped []int32) {
	n := r.Len()
	if n == 0 {
		return nil, nil
	}

	pos := int(r.read % uint64(len(r.buf)))
	if pos+n <= len(r.buf) {
		return r.buf[pos : pos+n], nil
	}
	return r.buf[pos:], r.buf[:pos+n-len(r.buf)]
}

// AdvanceRead discards the first n unread samples as consumed. n is
// clamped to the unread length.
func (r *Ring) AdvanceRead(n int) {
	if n < 0 {
		return
	}
	if avail := r.Len(); n > avail {
		n = avail
	}
	r.read += uint64(n)
}

// Reset discards all unread samples.
func (r *Ring) Reset() {
	r.read = r.write
}
