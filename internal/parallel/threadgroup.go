package parallel

import (
	"errors"
	"log/slog"
	"sync"
)

// Task is one unit of queued work. The token belongs to the worker
// executing the task and reports group shutdown; tasks must pass it to
// every blocking call they make and return promptly on ErrStopRequested.
type Task func(tk *StopToken) error

// ThreadGroup is a fixed-size worker pool dedicated to one storage device.
// Tasks run in FIFO order per group. The name is used for diagnostics only.
type ThreadGroup struct {
	name string

	mu        sync.Mutex
	cond      *sync.Cond // queue non-empty or closing
	queue     []Task
	running   int
	onDrained []func()
	closing   bool

	tokens []*StopToken
	wg     sync.WaitGroup
}

// NewThreadGroup starts size workers. Close must be called to stop them.
func NewThreadGroup(size int, name string) *ThreadGroup {
	g := &ThreadGroup{name: name}
	g.cond = sync.NewCond(&g.mu)
	for i := 0; i < size; i++ {
		tk := newStopToken()
		g.tokens = append(g.tokens, tk)
		g.wg.Add(1)
		go g.workerLoop(i, tk)
	}
	return g
}

// Name returns the diagnostic name given at construction.
func (g *ThreadGroup) Name() string { return g.name }

// Run enqueues a task. Never blocks. Tasks enqueued after Close are
// discarded.
func (g *ThreadGroup) Run(task Task) {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return
	}
	g.queue = append(g.queue, task)
	g.mu.Unlock()
	g.cond.Signal()
}

// NotifyWhenDone registers fn to be invoked exactly once, on a worker
// goroutine, after the last enqueued task completes. If the group is
// already drained, fn runs synchronously on the caller. fn must not touch
// the PhaseCallback: it does not run on the driver goroutine.
func (g *ThreadGroup) NotifyWhenDone(fn func()) {
	g.mu.Lock()
	if len(g.queue) == 0 && g.running == 0 {
		g.mu.Unlock()
		fn()
		return
	}
	g.onDrained = append(g.onDrained, fn)
	g.mu.Unlock()
}

func (g *ThreadGroup) workerLoop(id int, tk *StopToken) {
	defer g.wg.Done()

	for {
		g.mu.Lock()
		err := interruptibleWait(g.cond, tk, func() bool {
			return len(g.queue) > 0 || g.closing
		})
		if err != nil || g.closing {
			g.mu.Unlock()
			return
		}
		task := g.queue[0]
		g.queue = g.queue[1:]
		g.running++
		g.mu.Unlock()

		if err := task(tk); err != nil && !errors.Is(err, ErrStopRequested) {
			slog.Error("worker task failed", "group", g.name, "worker", id, "error", err)
		}

		g.mu.Lock()
		g.running--
		var drained []func()
		if len(g.queue) == 0 && g.running == 0 {
			drained = g.onDrained
			g.onDrained = nil
		}
		g.mu.Unlock()

		for _, fn := range drained {
			fn()
		}
	}
}

// Close signals cancellation to every worker, discards tasks that have not
// started, and joins the workers. Tasks blocked inside AsyncCallback calls
// observe ErrStopRequested through their token. Safe to call twice.
func (g *ThreadGroup) Close() {
	g.mu.Lock()
	g.closing = true
	g.queue = nil
	g.mu.Unlock()

	for _, tk := range g.tokens {
		tk.stop()
	}
	g.cond.Broadcast()
	g.wg.Wait()
}
