package run

import (
	"context"
	"log/slog"
	"time"

	"github.com/eargollo/parsync/internal/config"
	"github.com/eargollo/parsync/internal/parallel"
)

// Phase is the driver-side progress surface for a sync run. It mirrors
// stats into Progress for the HTTP API, routes error prompts through the
// ErrorGate according to the configured policy, and turns run-context
// cancellation into an abort by failing UpdateStatus.
type Phase struct {
	ctx           context.Context
	progress      *Progress
	gate          *ErrorGate
	errorMode     string
	promptTimeout time.Duration
	log           *slog.Logger
}

// NewPhase builds the callback for one run.
func NewPhase(ctx context.Context, progress *Progress, gate *ErrorGate, errorMode string, promptTimeout time.Duration, log *slog.Logger) *Phase {
	return &Phase{
		ctx:           ctx,
		progress:      progress,
		gate:          gate,
		errorMode:     errorMode,
		promptTimeout: promptTimeout,
		log:           log,
	}
}

func (p *Phase) UpdateDataProcessed(itemsDelta, bytesDelta int64) {
	p.progress.ItemsProcessed.Add(itemsDelta)
	p.progress.BytesProcessed.Add(bytesDelta)
}

func (p *Phase) UpdateDataTotal(itemsDelta, bytesDelta int64) {
	p.progress.ItemsTotal.Add(itemsDelta)
	p.progress.BytesTotal.Add(bytesDelta)
}

// UpdateStatus records the aggregated status line. Returning the context
// error here is what unwinds the whole executor on Cancel.
func (p *Phase) UpdateStatus(msg string) error {
	p.progress.SetStatus(msg)
	return p.ctx.Err()
}

func (p *Phase) LogInfo(msg string) error {
	p.log.Info(msg)
	return p.ctx.Err()
}

// ReportError answers a worker's error prompt per the configured policy.
func (p *Phase) ReportError(info parallel.ErrorInfo) (parallel.Response, error) {
	if err := p.ctx.Err(); err != nil {
		return parallel.Ignore, err
	}

	switch p.errorMode {
	case config.ErrorModeIgnore:
		p.log.Warn("ignoring error", "msg", info.Msg)
		return parallel.Ignore, nil
	case config.ErrorModeRetry:
		if info.RetryCount == 0 {
			p.log.Warn("retrying after error", "msg", info.Msg)
			return parallel.Retry, nil
		}
		p.log.Warn("ignoring error after retry", "msg", info.Msg)
		return parallel.Ignore, nil
	default: // config.ErrorModePrompt
		return p.gate.Ask(p.ctx, info, parallel.Ignore, p.promptTimeout)
	}
}
