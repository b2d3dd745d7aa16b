// Package speed implements a windowed moving-average throughput estimator
// over (elapsed, items, bytes) samples. It backs the percent reporter's
// remaining-time and bytes-per-second figures.
package speed

import "time"

type sample struct {
	elapsed time.Duration
	items   int64
	bytes   int64
}

// Estimator keeps samples from the most recent window and derives rates
// from the oldest and newest retained sample. Not safe for concurrent use;
// each reporter owns its own Estimator.
type Estimator struct {
	window  time.Duration
	samples []sample // ascending by elapsed
}

// New creates an Estimator retaining samples for the given window.
func New(window time.Duration) *Estimator {
	return &Estimator{window: window}
}

// AddSample records cumulative progress at the given elapsed time and
// evicts samples that fell out of the window. At least one older sample is
// always retained so a rate stays computable.
func (e *Estimator) AddSample(elapsed time.Duration, items, bytes int64) {
	e.samples = append(e.samples, sample{elapsed: elapsed, items: items, bytes: bytes})

	cutoff := elapsed - e.window
	i := 0
	for i < len(e.samples)-1 && e.samples[i].elapsed < cutoff {
		i++
	}
	if i > 0 {
		e.samples = append(e.samples[:0], e.samples[i:]...)
	}
}

// Clear discards all samples.
func (e *Estimator) Clear() {
	e.samples = e.samples[:0]
}

func (e *Estimator) span() (first, last sample, ok bool) {
	if len(e.samples) < 2 {
		return sample{}, sample{}, false
	}
	first = e.samples[0]
	last = e.samples[len(e.samples)-1]
	if last.elapsed <= first.elapsed {
		return sample{}, sample{}, false
	}
	return first, last, true
}

// BytesPerSec returns the byte throughput across the window, or ok=false
// when fewer than two distinct samples exist.
func (e *Estimator) BytesPerSec() (float64, bool) {
	first, last, ok := e.span()
	if !ok {
		return 0, false
	}
	return float64(last.bytes-first.bytes) / (last.elapsed - first.elapsed).Seconds(), true
}

// ItemsPerSec returns the item throughput across the window.
func (e *Estimator) ItemsPerSec() (float64, bool) {
	first, last, ok := e.span()
	if !ok {
		return 0, false
	}
	return float64(last.items-first.items) / (last.elapsed - first.elapsed).Seconds(), true
}

// RemainingSec estimates the seconds left for the given outstanding work.
// Byte throughput dominates; the item rate is consulted only when no bytes
// remain. ok=false when no usable rate exists yet.
func (e *Estimator) RemainingSec(itemsRemaining, bytesRemaining int64) (float64, bool) {
	if bytesRemaining > 0 {
		bps, ok := e.BytesPerSec()
		if !ok || bps <= 0 {
			return 0, false
		}
		return float64(bytesRemaining) / bps, true
	}
	ips, ok := e.ItemsPerSec()
	if !ok || ips <= 0 {
		return 0, false
	}
	return float64(itemsRemaining) / ips, true
}
