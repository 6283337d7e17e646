// ABOUTME: Elastic staging queue for decoded samples
// ABOUTME: Absorbs decode bursts that exceed ring buffer vacancy
package buffer

// StagingBaseline is the capacity the staging queue shrinks back to when
// fully drained: 256 KiB of 32-bit samples.
const StagingBaseline = (256 * 1024) / 4

// Staging is an unbounded FIFO of samples sitting between the decoder and
// the ring buffer. It grows to hold whatever one decode call produces and
// shrinks back toward the baseline whenever it is drained, bounding
// steady-state memory.
type Staging struct {
	buf  []int32
	head int
}

// NewStaging creates an empty staging queue with the baseline capacity.
func NewStaging() *Staging {
	return &Staging{buf: make([]int32, 0, StagingBaseline)}
}

// Len returns the number of queued samples.
func (s *Staging) Len() int { return len(s.buf) - s.head }

// Push appends samples to the back of the queue.
func (s *Staging) Push(samples []int32) {
	if s.head > 0 && s.head == len(s.buf) {
		s.buf = s.buf[:0]
		s.head = 0
	}
	s.buf = append(s.buf, samples...)
}

// Peek exposes the queued samples without copying, oldest first.
func (s *Staging) Peek() []int32 {
	return s.buf[s.head:]
}

// Drop discards the first n samples as consumed. When the queue empties it
// shrinks back to the baseline capacity.
func (s *Staging) Drop(n int) {
	if n < 0 {
		return
	}
	if avail := s.Len(); n > avail {
		n = avail
	}
	s.head += n
	if s.head == len(s.buf) {
		s.shrink()
	}
}

// Reset discards everything and shrinks to the baseline capacity.
func (s *Staging) Reset() {
	s.head = len(s.buf)
	s.shrink()
}

func (s *Staging) shrink() {
	if cap(s.buf) > StagingBaseline {
		s.buf = make([]int32, 0, StagingBaseline)
	} else {
		s.buf = s.buf[:0]
	}
	s.head = 0
}
