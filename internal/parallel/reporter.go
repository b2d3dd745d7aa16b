package parallel

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eargollo/parsync/internal/parallel/speed"
)

// ItemStatReporter manages statistics reporting for a single item of work:
// deltas are forwarded as processed data, and on Finish the expected totals
// are reconciled against what was actually reported.
type ItemStatReporter struct {
	itemsExpected int64
	bytesExpected int64
	itemsReported int64
	bytesReported int64
	cb            StatusReporter
	finished      bool
}

// NewItemStatReporter starts accounting for one item expected to amount to
// the given totals. Callers must invoke Finish exactly once when the scope
// ends, typically via defer.
func NewItemStatReporter(itemsExpected, bytesExpected int64, cb StatusReporter) *ItemStatReporter {
	return &ItemStatReporter{
		itemsExpected: itemsExpected,
		bytesExpected: bytesExpected,
		cb:            cb,
	}
}

// ReportDelta forwards processed-data deltas. Running totals above the
// expected value are immediately pushed into the total workload and the
// local tally clamped, so "processed <= total" holds at all times for the
// observer.
func (r *ItemStatReporter) ReportDelta(itemsDelta, bytesDelta int64) {
	r.cb.UpdateDataProcessed(itemsDelta, bytesDelta)
	r.itemsReported += itemsDelta
	r.bytesReported += bytesDelta

	if r.itemsReported > r.itemsExpected {
		r.cb.UpdateDataTotal(r.itemsReported-r.itemsExpected, 0)
		r.itemsReported = r.itemsExpected
	}
	if r.bytesReported > r.bytesExpected {
		r.cb.UpdateDataTotal(0, r.bytesReported-r.bytesExpected)
		r.bytesReported = r.bytesExpected
	}
}

// UpdateStatus forwards a status line for the current worker.
func (r *ItemStatReporter) UpdateStatus(msg string) error {
	return r.cb.UpdateStatus(msg)
}

// BytesReported returns the clamped running byte total.
func (r *ItemStatReporter) BytesReported() int64 { return r.bytesReported }

// BytesExpected returns the expected byte total given at construction.
func (r *ItemStatReporter) BytesExpected() int64 { return r.bytesExpected }

// Finish reconciles expected vs. actual totals and must be called exactly
// once. On success the correction is reported minus the expectation (may be
// negative, e.g. sparse files). On failure the original expectation is
// abandoned: whatever partial work happened counts as extra total workload,
// not as a reduction of the plan. Extra calls are no-ops.
func (r *ItemStatReporter) Finish(succeeded bool) {
	if r.finished {
		return
	}
	r.finished = true

	if succeeded {
		r.cb.UpdateDataTotal(r.itemsReported-r.itemsExpected, r.bytesReported-r.bytesExpected)
	} else {
		r.cb.UpdateDataTotal(r.itemsReported, r.bytesReported)
	}
}

const (
	statusPercentDelay            = 2 * time.Second
	statusPercentMinDuration      = 3 * time.Second
	statusPercentMinChangesPerSec = 2
	statusPercentSpeedWindow      = 10 * time.Second
)

// PercentStatReporter wraps an ItemStatReporter for one logical item and
// emits rate-limited "<prefix>42%  1.5 MB/s" status lines once the copy has
// run long enough that a percentage is worth showing.
type PercentStatReporter struct {
	msgPrefix   string
	showPercent bool
	startTime   time.Time
	lastUpdate  time.Time
	speedTest   *speed.Estimator
	rep         *ItemStatReporter

	now func() time.Time // test hook
}

// NewPercentStatReporter starts accounting for one item of bytesExpected
// bytes named by statusMsg, which is also emitted as the initial status.
func NewPercentStatReporter(statusMsg string, bytesExpected int64, cb StatusReporter) (*PercentStatReporter, error) {
	p := &PercentStatReporter{
		msgPrefix: statusMsg + "... ",
		speedTest: speed.New(statusPercentSpeedWindow),
		rep:       NewItemStatReporter(1, bytesExpected, cb),
		now:       time.Now,
	}
	if err := p.rep.UpdateStatus(statusMsg); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProgress forwards the delta and, at most every half UI tick,
// refreshes the percent display. Percent mode engages only after
// statusPercentDelay of byte flow and only if the estimated remainder
// exceeds statusPercentMinDuration; pre-engagement samples are discarded as
// too noisy.
func (p *PercentStatReporter) UpdateProgress(itemsDelta, bytesDelta int64) error {
	p.rep.ReportDelta(itemsDelta, bytesDelta)

	now := p.now()
	if now.Sub(p.lastUpdate) < UIUpdateInterval/2 {
		return nil
	}
	p.lastUpdate = now

	bytesCopied := p.rep.BytesReported()
	bytesTotal := p.rep.BytesExpected()

	if !p.showPercent && bytesCopied > 0 {
		if p.startTime.IsZero() {
			// Timing from the first byte gives cleaner throughput figures
			// than timing from construction.
			p.startTime = now
			p.speedTest.AddSample(0, 0, bytesCopied)
		} else if elapsed := now.Sub(p.startTime); elapsed >= statusPercentDelay {
			p.speedTest.AddSample(elapsed, 0, bytesCopied)

			if remSecs, ok := p.speedTest.RemainingSec(0, bytesTotal-bytesCopied); ok &&
				remSecs > statusPercentMinDuration.Seconds() {
				p.showPercent = true
				p.speedTest.Clear()
			}
		}
	}

	if p.showPercent {
		p.speedTest.AddSample(now.Sub(p.startTime), 0, bytesCopied)
		bps, _ := p.speedTest.BytesPerSec()

		// More bytes than expected are legal; clamp the display at 100%.
		fraction := 1.0
		if bytesTotal > 0 {
			fraction = min(float64(bytesCopied)/float64(bytesTotal), 1.0)
		}
		return p.rep.UpdateStatus(p.msgPrefix + formatPercent(fraction, bps, bytesTotal))
	}
	return nil
}

// UpdateStatus replaces the status line verbatim, bypassing percent
// formatting.
func (p *PercentStatReporter) UpdateStatus(msg string) error {
	return p.rep.UpdateStatus(msg)
}

// Finish reconciles the wrapped item reporter. Call exactly once.
func (p *PercentStatReporter) Finish(succeeded bool) {
	p.rep.Finish(succeeded)
}

// formatPercent picks the decimal precision so that at the current
// throughput the displayed percentage changes at most about twice per
// second, and appends the smoothed rate when one is known.
func formatPercent(fraction, bytesPerSec float64, bytesTotal int64) string {
	var totalSecs float64
	if bytesPerSec > 0 {
		totalSecs = float64(bytesTotal) / bytesPerSec
	}
	expectedSteps := totalSecs * statusPercentMinChangesPerSec

	var format string
	switch {
	case expectedSteps <= 100:
		format = "%.0f%%"
	case expectedSteps <= 1000:
		format = "%.1f%%"
	case expectedSteps <= 10000:
		format = "%.2f%%"
	default:
		format = "%.3f%%"
	}

	s := fmt.Sprintf(format, fraction*100)
	if bytesPerSec > 0 {
		s += "  " + humanize.Bytes(uint64(bytesPerSec)) + "/s"
	}
	return s
}
