package speed

import (
	"testing"
	"time"
)

// TestBytesPerSecAcrossWindow verifies the rate is derived from the oldest
// and newest retained sample.
func TestBytesPerSecAcrossWindow(t *testing.T) {
	e := New(10 * time.Second)
	e.AddSample(0, 0, 0)
	e.AddSample(2*time.Second, 0, 2_000_000)

	bps, ok := e.BytesPerSec()
	if !ok {
		t.Fatal("expected a rate from two samples")
	}
	if bps != 1_000_000 {
		t.Errorf("bytes/sec = %f, want 1000000", bps)
	}
}

// TestNoRateFromSingleSample verifies a lone sample yields no estimate.
func TestNoRateFromSingleSample(t *testing.T) {
	e := New(10 * time.Second)
	e.AddSample(time.Second, 1, 100)

	if _, ok := e.BytesPerSec(); ok {
		t.Error("unexpected rate from one sample")
	}
	if _, ok := e.RemainingSec(0, 100); ok {
		t.Error("unexpected remaining estimate from one sample")
	}
}

// TestWindowEvictsOldSamples verifies samples older than the window stop
// influencing the rate: a fast early burst followed by a slow tail must
// report the tail's speed.
func TestWindowEvictsOldSamples(t *testing.T) {
	e := New(5 * time.Second)
	e.AddSample(0, 0, 0)
	e.AddSample(time.Second, 0, 10_000_000) // 10 MB/s burst
	for s := 2; s <= 20; s++ {
		e.AddSample(time.Duration(s)*time.Second, 0, 10_000_000+int64(s)*1_000)
	}

	bps, ok := e.BytesPerSec()
	if !ok {
		t.Fatal("expected a rate")
	}
	if bps > 100_000 {
		t.Errorf("bytes/sec = %f still reflects the evicted burst", bps)
	}
}

// TestRemainingSecUsesByteRate verifies the remaining-time estimate.
func TestRemainingSecUsesByteRate(t *testing.T) {
	e := New(10 * time.Second)
	e.AddSample(0, 0, 0)
	e.AddSample(4*time.Second, 0, 4_000_000) // 1 MB/s

	rem, ok := e.RemainingSec(0, 3_000_000)
	if !ok {
		t.Fatal("expected an estimate")
	}
	if rem < 2.9 || rem > 3.1 {
		t.Errorf("remaining = %f s, want ~3", rem)
	}
}

// TestRemainingSecFallsBackToItems verifies the item rate is used when no
// bytes remain.
func TestRemainingSecFallsBackToItems(t *testing.T) {
	e := New(10 * time.Second)
	e.AddSample(0, 0, 0)
	e.AddSample(2*time.Second, 10, 0) // 5 items/s

	rem, ok := e.RemainingSec(10, 0)
	if !ok {
		t.Fatal("expected an estimate")
	}
	if rem < 1.9 || rem > 2.1 {
		t.Errorf("remaining = %f s, want ~2", rem)
	}
}

// TestClearDiscardsHistory verifies Clear resets the estimator.
func TestClearDiscardsHistory(t *testing.T) {
	e := New(10 * time.Second)
	e.AddSample(0, 0, 0)
	e.AddSample(time.Second, 0, 1000)
	e.Clear()

	if _, ok := e.BytesPerSec(); ok {
		t.Error("rate survived Clear")
	}
}
