package gateway

import "sync"

// Accumulator is a thread-safe, monotonically growing float32 stream indexed
// by an absolute sample position: pushed samples are never renumbered, and
// DropBefore only slides the retained window forward to bound memory — it
// never lowers Accumulated. Used for both the per-session audio stream (§3)
// and the neutral emotion stream accumulated once in ResetForReuse (§4.3).
type Accumulator struct {
	mu     sync.Mutex
	buf    []float32
	base   int64 // absolute index of buf[0]
	closed bool
}

// NewAccumulator returns an empty accumulator with base index 0.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Accumulated returns the total number of samples ever pushed, including
// samples that have since been dropped by DropBefore.
func (a *Accumulator) Accumulated() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base + int64(len(a.buf))
}

// PushZeros appends n zero samples, used to fill gaps in the audio stream
// (§4.3 PushAudio step 3).
func (a *Accumulator) PushZeros(n int) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for i := 0; i < n; i++ {
		a.buf = append(a.buf, 0)
	}
}

// Push appends samples to the stream.
func (a *Accumulator) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.buf = append(a.buf, samples...)
}

// Close marks the stream finished: further Push/PushZeros calls are
// silently dropped. The emotion accumulator is closed once per session,
// right after its one neutral vector is pushed in ResetForReuse.
func (a *Accumulator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

// DropBefore discards retained samples with absolute index < index,
// bounding memory. index is clamped to [base, Accumulated()]; it never
// un-accumulates history — Accumulated is unaffected.
func (a *Accumulator) DropBefore(index int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index <= a.base {
		return
	}
	end := a.base + int64(len(a.buf))
	if index > end {
		index = end
	}
	drop := index - a.base
	a.buf = a.buf[drop:]
	a.base = index
}

// PeekFrom returns a copy of up to n samples starting at absolute index
// start. start is clamped up to the retained window's base; a start at or
// beyond the end of the stream returns nil.
func (a *Accumulator) PeekFrom(start int64, n int) []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if start < a.base {
		start = a.base
	}
	end := a.base + int64(len(a.buf))
	if start >= end || n <= 0 {
		return nil
	}
	avail := end - start
	if int64(n) > avail {
		n = int(avail)
	}
	off := start - a.base
	out := make([]float32, n)
	copy(out, a.buf[off:off+int64(n)])
	return out
}

// Available reports how many samples are retained from the given absolute
// index to the end of the stream.
func (a *Accumulator) Available(from int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if from < a.base {
		from = a.base
	}
	end := a.base + int64(len(a.buf))
	if from >= end {
		return 0
	}
	return end - from
}

// Base returns the absolute index of the oldest retained sample.
func (a *Accumulator) Base() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base
}

// Reset clears the accumulator back to a freshly constructed state,
// including the closed flag. Used by ResetForReuse (§4.3).
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = nil
	a.base = 0
	a.closed = false
}
