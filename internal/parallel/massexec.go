package parallel

import (
	"sync"
	"sync/atomic"

	"github.com/eargollo/parsync/internal/vfs"
)

// TaskFunc is the failable closure a work item runs. It may return
// ErrStopRequested (cancellation) or any domain error; it must route every
// user-visible event through the ParallelContext and never touch the
// PhaseCallback.
type TaskFunc func(ctx *ParallelContext) error

// WorkItem pairs the path of an object with the task processing it.
type WorkItem struct {
	Path vfs.Path
	Task TaskFunc
}

// ParallelContext is handed to each task: the item's path plus the shared
// AsyncCallback bound to the stop token of the executing worker.
type ParallelContext struct {
	Path vfs.Path

	acb *AsyncCallback
	tk  *StopToken
}

// StopToken returns the executing worker's cancellation token, for tasks
// that block outside the AsyncCallback surface.
func (c *ParallelContext) StopToken() *StopToken { return c.tk }

func (c *ParallelContext) UpdateDataProcessed(itemsDelta, bytesDelta int64) {
	c.acb.UpdateDataProcessed(itemsDelta, bytesDelta)
}

func (c *ParallelContext) UpdateDataTotal(itemsDelta, bytesDelta int64) {
	c.acb.UpdateDataTotal(itemsDelta, bytesDelta)
}

func (c *ParallelContext) UpdateStatus(msg string) error {
	return c.acb.UpdateStatus(c.tk, msg)
}

func (c *ParallelContext) LogInfo(msg string) error {
	return c.acb.LogInfo(c.tk, msg)
}

func (c *ParallelContext) ReportInfo(msg string) error {
	return c.acb.ReportInfo(c.tk, msg)
}

func (c *ParallelContext) ReportError(info ErrorInfo) (Response, error) {
	return c.acb.ReportError(c.tk, info)
}

// MassParallelExecute partitions workload by device, runs each device's
// items on its own single-worker ThreadGroup (first folder pair gets status
// priority 0, and within one device items run in input order), and drives
// the PhaseCallback until every group has drained. One worker per device is
// the default so no single server gets hammered; see
// MassParallelExecuteWorkers to override.
//
// Returns nil on normal completion. An error returned by cb unwinds the
// executor: all groups are closed, which cancels in-flight tasks.
func MassParallelExecute(workload []WorkItem, groupName string, cb PhaseCallback) error {
	return massParallelExecute(workload, groupName, 1, cb)
}

// MassParallelExecuteWorkers is MassParallelExecute with an overridden
// per-device pool size. Overall concurrency is workersPerDevice * #devices.
func MassParallelExecuteWorkers(workload []WorkItem, groupName string, workersPerDevice int, cb PhaseCallback) error {
	if workersPerDevice < 1 {
		workersPerDevice = 1
	}
	return massParallelExecute(workload, groupName, workersPerDevice, cb)
}

func massParallelExecute(workload []WorkItem, groupName string, workersPerDevice int, cb PhaseCallback) error {
	perDevice := make(map[vfs.DeviceID][]WorkItem)
	var deviceOrder []vfs.DeviceID
	for _, item := range workload {
		dev := item.Path.Device()
		if _, ok := perDevice[dev]; !ok {
			deviceOrder = append(deviceOrder, dev)
		}
		perDevice[dev] = append(perDevice[dev], item)
	}

	if len(deviceOrder) == 0 {
		return nil // nothing will ever call NotifyAllDone
	}

	// The callback must outlive the groups; groups are closed before this
	// function returns and releases acb.
	acb := NewAsyncCallback()

	var activeDeviceCount atomic.Int64
	activeDeviceCount.Store(int64(len(deviceOrder)))

	groups := make([]*ThreadGroup, 0, len(deviceOrder))
	defer func() {
		for _, g := range groups {
			g.Close()
		}
	}()

	for prio, dev := range deviceOrder {
		g := NewThreadGroup(workersPerDevice, groupName+" "+string(dev))
		groups = append(groups, g)

		prio := prio
		for _, item := range perDevice[dev] {
			item := item
			g.Run(func(tk *StopToken) error {
				acb.NotifyTaskBegin(tk, prio)
				defer acb.NotifyTaskEnd(tk)

				return item.Task(&ParallelContext{Path: item.Path, acb: acb, tk: tk})
			})
		}

		// Runs on a worker goroutine: atomic decrement plus the final
		// NotifyAllDone only, never the PhaseCallback.
		g.NotifyWhenDone(func() {
			if activeDeviceCount.Add(-1) == 0 {
				acb.NotifyAllDone()
			}
		})
	}

	return acb.WaitUntilDone(UIUpdateInterval/2, cb)
}

// ParallelScope releases singleThread for the duration of fn and reacquires
// it on any exit. For callers that hold a coarse single-threaded-section
// lock and want genuinely parallel work within a bounded scope.
func ParallelScope[T any](fn func() (T, error), singleThread *sync.Mutex) (T, error) {
	singleThread.Unlock()
	defer singleThread.Lock()

	return fn()
}
