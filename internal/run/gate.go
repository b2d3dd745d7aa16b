package run

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eargollo/parsync/internal/parallel"
)

// ErrNoPendingError is returned by Answer when no prompt is waiting.
var ErrNoPendingError = errors.New("no error is awaiting an answer")

// ErrorGate publishes the driver's pending error prompt so operators can
// answer it over the HTTP API. At most one prompt is pending at a time:
// the executor serializes ReportError calls, so a second worker cannot
// raise an error until the current one is answered.
type ErrorGate struct {
	mu      sync.Mutex
	pending *pendingPrompt
}

type pendingPrompt struct {
	info   parallel.ErrorInfo
	answer chan parallel.Response
}

// PendingError is the API-facing snapshot of an unanswered prompt.
type PendingError struct {
	Msg           string    `json:"msg"`
	FirstRaisedAt time.Time `json:"first_raised_at"`
	RetryCount    int       `json:"retry_count"`
}

// Ask publishes info and blocks until an operator answers, the run context
// is cancelled, or timeout elapses. On timeout the fallback response is
// used so an unattended run never hangs on a prompt.
func (g *ErrorGate) Ask(ctx context.Context, info parallel.ErrorInfo, fallback parallel.Response, timeout time.Duration) (parallel.Response, error) {
	p := &pendingPrompt{info: info, answer: make(chan parallel.Response, 1)}

	g.mu.Lock()
	g.pending = p
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.pending == p {
			g.pending = nil
		}
		g.mu.Unlock()
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timeoutCh = tm.C
	}

	select {
	case resp := <-p.answer:
		return resp, nil
	case <-timeoutCh:
		slog.Warn("error prompt timed out", "msg", info.Msg, "fallback", fallback.String())
		return fallback, nil
	case <-ctx.Done():
		return parallel.Ignore, ctx.Err()
	}
}

// Pending returns the current unanswered prompt, or nil.
func (g *ErrorGate) Pending() *PendingError {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return nil
	}
	return &PendingError{
		Msg:           g.pending.info.Msg,
		FirstRaisedAt: g.pending.info.FirstRaisedAt,
		RetryCount:    g.pending.info.RetryCount,
	}
}

// Answer delivers an operator response to the pending prompt.
func (g *ErrorGate) Answer(resp parallel.Response) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return ErrNoPendingError
	}
	g.pending.answer <- resp
	g.pending = nil
	return nil
}
