package parallel

import "time"

// Response is the driver's answer to an error prompt.
type Response int

const (
	// Retry asks the failed operation to run again.
	Retry Response = iota
	// Ignore skips the failed operation and moves on.
	Ignore
)

func (r Response) String() string {
	switch r {
	case Retry:
		return "retry"
	case Ignore:
		return "ignore"
	default:
		return "unknown"
	}
}

// ErrorInfo describes a failure surfaced to the driver for an interactive
// decision.
type ErrorInfo struct {
	Msg           string
	FirstRaisedAt time.Time
	RetryCount    int
}

// PhaseCallback is the user-facing progress surface: render stats, show
// status lines, write the log, display a modal error. It is invoked only by
// the driver goroutine, from inside WaitUntilDone. Any error returned from
// UpdateStatus, LogInfo or ReportError (e.g. a user abort) propagates out
// of WaitUntilDone and unwinds the executor.
type PhaseCallback interface {
	UpdateDataProcessed(itemsDelta, bytesDelta int64)
	UpdateDataTotal(itemsDelta, bytesDelta int64)
	UpdateStatus(msg string) error
	LogInfo(msg string) error
	ReportError(info ErrorInfo) (Response, error)
}

// StatusReporter is the slice of the worker-side surface that per-item
// accounting needs. ParallelContext implements it; tests substitute fakes.
type StatusReporter interface {
	UpdateDataProcessed(itemsDelta, bytesDelta int64)
	UpdateDataTotal(itemsDelta, bytesDelta int64)
	UpdateStatus(msg string) error
}

// ErrorReporter is the worker-side prompt surface used by
// TryReportingError. ParallelContext implements it.
type ErrorReporter interface {
	ReportError(info ErrorInfo) (Response, error)
}
