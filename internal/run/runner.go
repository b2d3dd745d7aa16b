package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/eargollo/parsync/internal/config"
	"github.com/eargollo/parsync/internal/parallel"
	"github.com/eargollo/parsync/internal/vfs"
)

const (
	copyBufSize   = 256 * 1024
	flushInterval = time.Second
)

// runner executes one sync run: enumerate the folder pairs, copy every
// regular file to its target, and persist the outcome.
type runner struct {
	store            *Store
	pairs            []config.FolderPair
	workersPerDevice int
	progress         *Progress
	gate             *ErrorGate
	errorMode        string
	promptTimeout    time.Duration
	log              *slog.Logger

	mu      sync.Mutex
	ignored error
}

// run drives the whole lifecycle of one run record. The returned error is
// the run's terminal failure, nil for completed runs (even ones with
// ignored errors).
func (r *runner) run(ctx context.Context, runID int64, startedAt time.Time) error {
	r.log.Info("sync run started", "pairs", len(r.pairs))

	runErr := r.execute(ctx, runID)

	status := StatusCompleted
	switch {
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, parallel.ErrStopRequested):
		status = StatusCancelled
	case runErr != nil:
		status = StatusFailed
	}

	finishedAt := time.Now()
	r.mu.Lock()
	ignored := r.ignored
	r.mu.Unlock()

	recordErr := multierr.Append(runErr, ignored)
	if err := r.store.FinaliseRun(runID, status, startedAt, finishedAt, r.progress, recordErr); err != nil {
		r.log.Error("failed to finalise run record", "error", err)
	}

	r.log.Info("sync run finished",
		"status", status,
		"items", r.progress.ItemsProcessed.Load(),
		"bytes", r.progress.BytesProcessed.Load(),
		"errors_ignored", r.progress.ErrorsIgnored.Load(),
		"duration", finishedAt.Sub(startedAt).Round(time.Millisecond),
	)
	return runErr
}

func (r *runner) execute(ctx context.Context, runID int64) error {
	workload, totalItems, totalBytes, err := r.buildWorkload()
	if err != nil {
		return err
	}
	r.progress.ItemsTotal.Add(totalItems)
	r.progress.BytesTotal.Add(totalBytes)
	r.progress.SetStatus(fmt.Sprintf("Copying %d items...", totalItems))

	stop := make(chan struct{})
	defer close(stop)
	go r.flushLoop(runID, stop)

	phase := NewPhase(ctx, r.progress, r.gate, r.errorMode, r.promptTimeout, r.log)
	return parallel.MassParallelExecuteWorkers(workload, "sync", r.workersPerDevice, phase)
}

// flushLoop periodically mirrors the live counters into run_history.
func (r *runner) flushLoop(runID int64, stop <-chan struct{}) {
	tick := time.NewTicker(flushInterval)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			if err := r.store.FlushProgress(runID, r.progress); err != nil {
				r.log.Warn("progress flush failed", "error", err)
			}
		}
	}
}

// buildWorkload walks every source tree and emits one copy item per
// regular file, keyed on the source root as the device.
func (r *runner) buildWorkload() ([]parallel.WorkItem, int64, int64, error) {
	var (
		items      []parallel.WorkItem
		totalItems int64
		totalBytes int64
	)
	for _, pair := range r.pairs {
		pair := pair
		err := filepath.WalkDir(pair.Source, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(pair.Source, path)
			if err != nil {
				return err
			}
			size := info.Size()
			totalItems++
			totalBytes += size
			items = append(items, parallel.WorkItem{
				Path: vfs.LocalPath{Root: pair.Source, Rel: rel},
				Task: r.copyTask(pair, rel, size),
			})
			return nil
		})
		if err != nil {
			return nil, 0, 0, fmt.Errorf("enumerate %q: %w", pair.Source, err)
		}
	}
	return items, totalItems, totalBytes, nil
}

// copyTask copies one file, reporting percent progress and routing
// failures through the interactive retry/ignore loop.
func (r *runner) copyTask(pair config.FolderPair, rel string, size int64) parallel.TaskFunc {
	return func(pctx *parallel.ParallelContext) error {
		rep, err := parallel.NewPercentStatReporter("Copying "+pctx.Path.DisplayPath(), size, pctx)
		if err != nil {
			return err
		}
		succeeded := false
		defer func() { rep.Finish(succeeded) }()

		ignoredMsg, err := parallel.TryReportingError(func() error {
			return copyFile(pctx.StopToken(), pair, rel, rep)
		}, pctx)
		if err != nil {
			return err
		}
		if ignoredMsg != "" {
			// An ignore is a normal scope exit: the reporter must shrink the
			// plan by the unfinished remainder so processed meets total.
			succeeded = true
			r.recordIgnored(ignoredMsg)
			return pctx.LogInfo("ignored: " + ignoredMsg)
		}
		succeeded = true
		return nil
	}
}

func (r *runner) recordIgnored(msg string) {
	r.progress.ErrorsIgnored.Add(1)
	r.mu.Lock()
	r.ignored = multierr.Append(r.ignored, errors.New(msg))
	r.mu.Unlock()
}

// copyFile streams src to dst in chunks, checking the worker's stop token
// between chunks so cancellation lands promptly even on large files.
func copyFile(tk *parallel.StopToken, pair config.FolderPair, rel string, rep *parallel.PercentStatReporter) error {
	srcPath := filepath.Join(pair.Source, rel)
	dstPath := filepath.Join(pair.Target, rel)

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}

	buf := make([]byte, copyBufSize)
	for {
		if err := tk.Err(); err != nil {
			dst.Close()
			return err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				dst.Close()
				return fmt.Errorf("write target: %w", werr)
			}
			if err := rep.UpdateProgress(0, int64(n)); err != nil {
				dst.Close()
				return err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			dst.Close()
			return fmt.Errorf("read source: %w", rerr)
		}
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close target: %w", err)
	}

	return rep.UpdateProgress(1, 0)
}
