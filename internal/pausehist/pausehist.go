// Package pausehist records pause durations in power-of-two buckets.
package pausehist

import (
	"fmt"
	"io"
	"math/bits"
	"sync"
	"time"
)

// numBuckets covers durations up to 2^40ns (~18 minutes); longer pauses land
// in the last bucket.
const numBuckets = 41

// Histogram is safe for concurrent use.
type Histogram struct {
	name string
	mu   struct {
		sync.Mutex
		buckets [numBuckets]uint64
		count   uint64
		sum     time.Duration
		min     time.Duration
		max     time.Duration
	}
}

// New returns an empty histogram labeled name.
func New(name string) *Histogram {
	return &Histogram{name: name}
}

func bucketOf(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	b := bits.Len64(uint64(d))
	if b >= numBuckets {
		b = numBuckets - 1
	}
	return b
}

// Add records one pause.
func (h *Histogram) Add(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mu.buckets[bucketOf(d)]++
	if h.mu.count == 0 || d < h.mu.min {
		h.mu.min = d
	}
	if d > h.mu.max {
		h.mu.max = d
	}
	h.mu.count++
	h.mu.sum += d
}

// Snapshot is a point-in-time copy of a histogram.
type Snapshot struct {
	Count uint64
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
	// Buckets[i] counts pauses in [2^(i-1), 2^i) nanoseconds.
	Buckets [numBuckets]uint64
}

// Snapshot copies the current state.
func (h *Histogram) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		Count:   h.mu.count,
		Sum:     h.mu.sum,
		Min:     h.mu.min,
		Max:     h.mu.max,
		Buckets: h.mu.buckets,
	}
}

// Mean returns the average pause.
func (s Snapshot) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.Count)
}

// Percentile returns the upper bound of the bucket holding the p-th
// percentile, clamped to the observed maximum.
func (s Snapshot) Percentile(p float64) time.Duration {
	if s.Count == 0 {
		return 0
	}
	rank := uint64(p / 100 * float64(s.Count))
	if rank >= s.Count {
		rank = s.Count - 1
	}
	var seen uint64
	for i, n := range s.Buckets {
		seen += n
		if seen > rank {
			upper := time.Duration(1) << i
			if upper > s.Max {
				upper = s.Max
			}
			return upper
		}
	}
	return s.Max
}

// Dump writes a one-line summary.
func (h *Histogram) Dump(w io.Writer) error {
	s := h.Snapshot()
	if s.Count == 0 {
		_, err := fmt.Fprintf(w, "%s: no samples\n", h.name)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: Sum: %s Count: %d Min: %s Mean: %s 99%%: %s Max: %s\n",
		h.name, s.Sum, s.Count, s.Min, s.Mean(), s.Percentile(99), s.Max)
	return err
}
