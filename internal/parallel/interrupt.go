package parallel

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStopRequested is raised out of any blocking core operation once the
// owning ThreadGroup has signalled the worker's stop token. Worker tasks
// must treat it as immediate termination.
var ErrStopRequested = errors.New("stop requested")

// StopToken carries the cooperative cancellation state of one worker
// goroutine. Tasks receive the token of the worker executing them and pass
// it to every blocking call they make.
type StopToken struct {
	done     chan struct{}
	stopOnce sync.Once

	// Condition variable the owner is currently parked on, if any.
	// stop() re-broadcasts it so a parked interruptibleWait wakes up.
	waitingOn atomic.Pointer[sync.Cond]
}

func newStopToken() *StopToken {
	return &StopToken{done: make(chan struct{})}
}

// Done returns a channel that is closed once cancellation has been
// requested. Blocking operations select on it alongside their own wait.
func (t *StopToken) Done() <-chan struct{} { return t.done }

// StopRequested reports whether cancellation has been requested.
func (t *StopToken) StopRequested() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns ErrStopRequested once cancellation has been requested, nil
// before. Long-running tasks call this between I/O chunks.
func (t *StopToken) Err() error {
	if t.StopRequested() {
		return ErrStopRequested
	}
	return nil
}

// stop requests cancellation. Idempotent. If the owner is parked inside
// interruptibleWait, taking the cond's lock before broadcasting guarantees
// the owner is either not yet past its flag check or already parked, so the
// wake-up cannot be lost.
func (t *StopToken) stop() {
	t.stopOnce.Do(func() { close(t.done) })
	if c := t.waitingOn.Load(); c != nil {
		c.L.Lock()
		c.L.Unlock()
		c.Broadcast()
	}
}

// interruptibleWait behaves as a standard predicate wait on cond, except it
// re-checks the stop token at entry and at every wake, returning
// ErrStopRequested when set. cond.L must be held on entry and is held again
// on return. No plain unbounded waits are permitted in this package; every
// condition wait goes through here.
func interruptibleWait(cond *sync.Cond, tk *StopToken, pred func() bool) error {
	tk.waitingOn.Store(cond)
	defer tk.waitingOn.Store(nil)

	for {
		if tk.StopRequested() {
			return ErrStopRequested
		}
		if pred() {
			return nil
		}
		cond.Wait()
	}
}
