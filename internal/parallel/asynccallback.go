package parallel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// UIUpdateInterval is the tick at which a UI repaints progress. The driver
// loop wakes at half this interval so stats and status never lag a frame.
const UIUpdateInterval = 100 * time.Millisecond

// errorExchange is one ReportError round-trip. The reply channel belongs to
// the requesting worker alone, so a response can never be delivered to the
// wrong caller.
type errorExchange struct {
	info  ErrorInfo
	reply chan Response
}

// AsyncCallback is the coordination channel between worker goroutines and
// the single driver goroutine running WaitUntilDone.
//
// Three independent synchronization domains:
//
//   - the request channel: a capacity-one log-info slot, a capacity-one
//     error exchange slot and the terminal done signal. Capacity one gives
//     the original slot semantics: the first producer stores and moves on,
//     the next blocks until the driver has drained the slot. While the
//     driver is inside an interactive callback it is not receiving, so all
//     workers coming out of parallel I/O stack up here — this serialization
//     is the sole pause/backpressure mechanism.
//
//   - lockCurrentStatus guards statusByPriority only, so a worker updating
//     its status line never stalls behind the driver processing an error
//     prompt.
//
//   - the four delta counters are atomics and need no lock at all.
//
// An AsyncCallback must outlive every ThreadGroup that references it:
// groups are closed first, then the callback goes out of reach.
type AsyncCallback struct {
	logCh    chan string
	errCh    chan *errorExchange
	done     chan struct{}
	doneOnce sync.Once

	lockCurrentStatus sync.Mutex
	// statusByPriority[p] holds the ThreadStatus entries of workers
	// currently running tasks of the device with priority p (= insertion
	// order of the device). A worker appears in at most one bucket.
	statusByPriority [][]threadStatus

	itemsDeltaProcessed atomic.Int64
	bytesDeltaProcessed atomic.Int64
	itemsDeltaTotal     atomic.Int64
	bytesDeltaTotal     atomic.Int64
}

type threadStatus struct {
	tk        *StopToken
	statusMsg string
}

// NewAsyncCallback creates the channel in its ready state.
func NewAsyncCallback() *AsyncCallback {
	return &AsyncCallback{
		logCh: make(chan string, 1),
		errCh: make(chan *errorExchange, 1),
		done:  make(chan struct{}),
	}
}

//
// ---- worker-facing operations (must not run on the driver goroutine) ----
//

// UpdateDataProcessed posts a completed-work delta. Non-blocking, never
// fails.
func (a *AsyncCallback) UpdateDataProcessed(itemsDelta, bytesDelta int64) {
	a.itemsDeltaProcessed.Add(itemsDelta)
	a.bytesDeltaProcessed.Add(bytesDelta)
}

// UpdateDataTotal posts a revised-expectation delta. Non-blocking, never
// fails.
func (a *AsyncCallback) UpdateDataTotal(itemsDelta, bytesDelta int64) {
	a.itemsDeltaTotal.Add(itemsDelta)
	a.bytesDeltaTotal.Add(bytesDelta)
}

// UpdateStatus replaces the calling worker's status line, then checks for
// cancellation. A worker without a registered entry (task not begun) is a
// silent no-op.
func (a *AsyncCallback) UpdateStatus(tk *StopToken, msg string) error {
	a.lockCurrentStatus.Lock()
	if ts := a.threadStatusLocked(tk); ts != nil {
		ts.statusMsg = msg
	}
	a.lockCurrentStatus.Unlock()
	return tk.Err()
}

// LogInfo queues msg for the driver's log sink. Blocks while the slot is
// occupied; concurrent loggers are thereby serialized, and a driver stalled
// in an interactive prompt backs pressure up through all workers.
func (a *AsyncCallback) LogInfo(tk *StopToken, msg string) error {
	select {
	case a.logCh <- msg:
		return nil
	case <-tk.Done():
		return ErrStopRequested
	}
}

// ReportInfo is LogInfo followed by UpdateStatus with the same message.
func (a *AsyncCallback) ReportInfo(tk *StopToken, msg string) error {
	if err := a.LogInfo(tk, msg); err != nil {
		return err
	}
	return a.UpdateStatus(tk, msg)
}

// ReportError submits an error prompt and blocks until the driver answers.
// Concurrent callers are serialized; each receives exactly the response the
// driver stored for its own request.
func (a *AsyncCallback) ReportError(tk *StopToken, info ErrorInfo) (Response, error) {
	ex := &errorExchange{info: info, reply: make(chan Response, 1)}

	select {
	case a.errCh <- ex:
	case <-tk.Done():
		return 0, ErrStopRequested
	}

	select {
	case resp := <-ex.reply:
		return resp, nil
	case <-tk.Done():
		return 0, ErrStopRequested
	}
}

// NotifyTaskBegin registers the calling worker in the status bucket at
// prio, growing the bucket vector on demand.
func (a *AsyncCallback) NotifyTaskBegin(tk *StopToken, prio int) {
	a.lockCurrentStatus.Lock()
	defer a.lockCurrentStatus.Unlock()

	for len(a.statusByPriority) < prio+1 {
		a.statusByPriority = append(a.statusByPriority, nil)
	}
	a.statusByPriority[prio] = append(a.statusByPriority[prio], threadStatus{tk: tk})
}

// NotifyTaskEnd removes the calling worker's entry. Swap with the back for
// O(1) removal; bucket order carries no meaning.
func (a *AsyncCallback) NotifyTaskEnd(tk *StopToken) {
	a.lockCurrentStatus.Lock()
	defer a.lockCurrentStatus.Unlock()

	for pi := range a.statusByPriority {
		bucket := a.statusByPriority[pi]
		for i := range bucket {
			if bucket[i].tk == tk {
				last := len(bucket) - 1
				bucket[i] = bucket[last]
				a.statusByPriority[pi] = bucket[:last]
				return
			}
		}
	}
}

// NotifyAllDone signals the driver that no further requests will arrive.
// Idempotent.
func (a *AsyncCallback) NotifyAllDone() {
	a.doneOnce.Do(func() { close(a.done) })
}

// threadStatusLocked finds the caller's entry. Linear search: thread counts
// are one per device, typically single digits.
func (a *AsyncCallback) threadStatusLocked(tk *StopToken) *threadStatus {
	for pi := range a.statusByPriority {
		bucket := a.statusByPriority[pi]
		for i := range bucket {
			if bucket[i].tk == tk {
				return &bucket[i]
			}
		}
	}
	return nil
}

//
// ---- driver-facing operation ----
//

// WaitUntilDone is the driver loop and the only place cb is ever invoked.
// It answers error prompts and log requests without delay, and every
// cbInterval pushes the aggregated status line and the drained stat deltas.
// Returns nil once NotifyAllDone has been observed (after one final stats
// pass), or the first error returned by cb.
func (a *AsyncCallback) WaitUntilDone(cbInterval time.Duration, cb PhaseCallback) error {
	ticker := time.NewTicker(cbInterval)
	defer ticker.Stop()

	for {
		select {
		case ex := <-a.errCh:
			resp, err := cb.ReportError(ex.info)
			if err != nil {
				return err
			}
			ex.reply <- resp
			continue

		case msg := <-a.logCh:
			if err := cb.LogInfo(msg); err != nil {
				return err
			}
			continue

		case <-a.done:
			return a.finish(cb)

		case <-ticker.C:
		}

		if err := cb.UpdateStatus(a.getCurrentStatus()); err != nil {
			return err
		}
		a.reportStats(cb)
	}
}

// finish delivers a log line that may still sit in the slot (its producer
// already returned and completed), then makes one last stats pass for
// accurate totals. A pending error exchange is impossible here: a worker
// blocked in ReportError has not completed its task, so its group cannot
// have drained.
func (a *AsyncCallback) finish(cb PhaseCallback) error {
	for {
		select {
		case msg := <-a.logCh:
			if err := cb.LogInfo(msg); err != nil {
				return err
			}
		default:
			a.reportStats(cb)
			return nil
		}
	}
}

// reportStats drains the four delta counters. Read then subtract the read
// value — a plain store of zero would lose increments landing between the
// read and the store.
func (a *AsyncCallback) reportStats(cb PhaseCallback) {
	items := a.itemsDeltaProcessed.Load()
	bytes := a.bytesDeltaProcessed.Load()
	if items != 0 || bytes != 0 {
		a.itemsDeltaProcessed.Add(-items)
		a.bytesDeltaProcessed.Add(-bytes)
		cb.UpdateDataProcessed(items, bytes)
	}

	items = a.itemsDeltaTotal.Load()
	bytes = a.bytesDeltaTotal.Load()
	if items != 0 || bytes != 0 {
		a.itemsDeltaTotal.Add(-items)
		a.bytesDeltaTotal.Add(-bytes)
		cb.UpdateDataTotal(items, bytes)
	}
}

// getCurrentStatus aggregates worker status lines: count of non-empty
// priority buckets, plus the first non-empty message in priority order,
// prefixed with a thread-count tag when two or more devices are active.
func (a *AsyncCallback) getCurrentStatus() string {
	parallelOpsTotal := 0
	statusMsg := ""

	a.lockCurrentStatus.Lock()
	for _, bucket := range a.statusByPriority {
		if len(bucket) > 0 {
			parallelOpsTotal++
		}
	}
outer:
	for _, bucket := range a.statusByPriority {
		for _, ts := range bucket {
			if ts.statusMsg != "" {
				statusMsg = ts.statusMsg
				break outer
			}
		}
	}
	a.lockCurrentStatus.Unlock()

	if parallelOpsTotal >= 2 {
		return fmt.Sprintf("[%d threads] %s", parallelOpsTotal, statusMsg)
	}
	return statusMsg
}
