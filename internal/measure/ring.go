// Package measure provides the numeric building blocks shared by the control
// loop: sample history, flow integration and bounded increments.
package measure

import "math"

// Ring is a fixed-capacity circular buffer of samples.
// Once full, each Push overwrites the oldest sample.
// Not safe for concurrent use.
type Ring struct {
	buf   []float64
	head  int // next write position
	count int
}

// NewRing creates an empty ring holding at most capacity samples.
// A capacity below 1 is raised to 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends a sample, overwriting the oldest one when the ring is full.
func (r *Ring) Push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Fill sets every slot to v and marks the ring full.
// Used to warm-start history so the first reads are not biased towards zero.
func (r *Ring) Fill(v float64) {
	for i := range r.buf {
		r.buf[i] = v
	}
	r.head = 0
	r.count = len(r.buf)
}

// Reset empties the ring.
func (r *Ring) Reset() {
	r.head = 0
	r.count = 0
}

// Len returns the number of samples held.
func (r *Ring) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Full reports whether the ring holds Cap samples.
func (r *Ring) Full() bool { return r.count == len(r.buf) }

// Last returns the most recent sample, or 0 when empty.
func (r *Ring) Last() float64 {
	if r.count == 0 {
		return 0
	}
	return r.buf[(r.head-1+len(r.buf))%len(r.buf)]
}

// Values returns the held samples, oldest first.
func (r *Ring) Values() []float64 {
	out := make([]float64, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// held returns the samples in storage order. Until the ring wraps they
// sit at the start of buf, and once full buf holds exactly them.
func (r *Ring) held() []float64 {
	return r.buf[:r.count]
}

// Mean returns the average of the held samples, or 0 when empty.
func (r *Ring) Mean() float64 {
	if r.count == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.held() {
		sum += v
	}
	return sum / float64(r.count)
}

// Min returns the smallest held sample, or 0 when empty.
func (r *Ring) Min() float64 {
	lo, _ := r.bounds()
	return lo
}

// Max returns the largest held sample, or 0 when empty.
func (r *Ring) Max() float64 {
	_, hi := r.bounds()
	return hi
}

// Spread returns Max - Min.
func (r *Ring) Spread() float64 {
	lo, hi := r.bounds()
	return hi - lo
}

func (r *Ring) bounds() (lo, hi float64) {
	if r.count == 0 {
		return 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range r.held() {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
