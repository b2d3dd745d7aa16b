package parallel

import (
	"errors"
	"time"
)

// TryReportingError runs cmd, routing each failure through cb as an
// interactive prompt. A "retry" answer loops with an incremented retry
// count; "ignore" returns the swallowed message for caller-side logging.
// The empty string means cmd eventually succeeded. The error return is
// non-nil only when cmd or the prompt raised ErrStopRequested, which must
// unwind the task.
func TryReportingError(cmd func() error, cb ErrorReporter) (ignoredMsg string, err error) {
	var firstRaisedAt time.Time

	for retryNumber := 0; ; retryNumber++ {
		cmdErr := cmd()
		if cmdErr == nil {
			return "", nil
		}
		if errors.Is(cmdErr, ErrStopRequested) {
			return "", cmdErr
		}
		if firstRaisedAt.IsZero() {
			firstRaisedAt = time.Now()
		}

		resp, err := cb.ReportError(ErrorInfo{
			Msg:           cmdErr.Error(),
			FirstRaisedAt: firstRaisedAt,
			RetryCount:    retryNumber,
		})
		if err != nil {
			return "", err
		}
		if resp == Ignore {
			return cmdErr.Error(), nil
		}
	}
}
