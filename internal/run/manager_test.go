package run

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eargollo/parsync/internal/config"
	"github.com/eargollo/parsync/internal/parallel"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitRunDone(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for m.Active() != nil {
		if time.Now().After(deadline) {
			t.Fatal("run did not finish in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestManagerCopiesFolderPairs verifies a full run mirrors every file of
// both pairs and records a completed row with accurate counters.
func TestManagerCopiesFolderPairs(t *testing.T) {
	database := openTestDB(t)
	base := t.TempDir()

	srcA := filepath.Join(base, "srcA")
	srcB := filepath.Join(base, "srcB")
	dstA := filepath.Join(base, "dstA")
	dstB := filepath.Join(base, "dstB")
	writeFile(t, filepath.Join(srcA, "a.txt"), "alpha")
	writeFile(t, filepath.Join(srcA, "sub", "b.txt"), "bravo-bravo")
	writeFile(t, filepath.Join(srcB, "c.txt"), "charlie")
	if err := os.MkdirAll(dstA, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dstB, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		FolderPairs: []config.FolderPair{
			{Source: srcA, Target: dstA},
			{Source: srcB, Target: dstB},
		},
		WorkersPerDevice: 1,
		ErrorMode:        config.ErrorModeIgnore,
	}

	m := NewManager(database, cfg)
	active, err := m.Start(context.Background(), "test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitRunDone(t, m)

	for path, want := range map[string]string{
		filepath.Join(dstA, "a.txt"):        "alpha",
		filepath.Join(dstA, "sub", "b.txt"): "bravo-bravo",
		filepath.Join(dstB, "c.txt"):        "charlie",
	} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}

	var status string
	var items, bytes, ignored int64
	err = database.QueryRow(
		`SELECT status, items_processed, bytes_processed, errors_ignored
		 FROM run_history WHERE id = ?`, active.ID,
	).Scan(&status, &items, &bytes, &ignored)
	if err != nil {
		t.Fatalf("query run row: %v", err)
	}
	if status != StatusCompleted {
		t.Errorf("status = %q, want completed", status)
	}
	if items != 3 {
		t.Errorf("items_processed = %d, want 3", items)
	}
	if want := int64(len("alpha") + len("bravo-bravo") + len("charlie")); bytes != want {
		t.Errorf("bytes_processed = %d, want %d", bytes, want)
	}
	if ignored != 0 {
		t.Errorf("errors_ignored = %d, want 0", ignored)
	}
}

// TestManagerIgnoredErrorBalancesCounters verifies an ignored item shrinks
// the plan: the run completes with processed equal to total, the unfinished
// expectation of the failed item reconciled away rather than left dangling.
func TestManagerIgnoredErrorBalancesCounters(t *testing.T) {
	database := openTestDB(t)
	base := t.TempDir()

	goodSrc := filepath.Join(base, "good-src")
	goodDst := filepath.Join(base, "good-dst")
	writeFile(t, filepath.Join(goodSrc, "a.txt"), "alpha")
	if err := os.MkdirAll(goodDst, 0o755); err != nil {
		t.Fatal(err)
	}

	badSrc := filepath.Join(base, "bad-src")
	writeFile(t, filepath.Join(badSrc, "b.txt"), "bravo")
	// The target root is a regular file, so every copy into it fails.
	blocker := filepath.Join(base, "not-a-dir")
	writeFile(t, blocker, "blocker")

	cfg := &config.Config{
		FolderPairs: []config.FolderPair{
			{Source: goodSrc, Target: goodDst},
			{Source: badSrc, Target: filepath.Join(blocker, "sub")},
		},
		WorkersPerDevice: 1,
		ErrorMode:        config.ErrorModeIgnore,
	}

	m := NewManager(database, cfg)
	active, err := m.Start(context.Background(), "test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitRunDone(t, m)

	var status string
	var items, bytes, itemsTotal, bytesTotal, ignored int64
	err = database.QueryRow(
		`SELECT status, items_processed, bytes_processed, items_total,
		        bytes_total, errors_ignored
		 FROM run_history WHERE id = ?`, active.ID,
	).Scan(&status, &items, &bytes, &itemsTotal, &bytesTotal, &ignored)
	if err != nil {
		t.Fatalf("query run row: %v", err)
	}
	if status != StatusCompleted {
		t.Errorf("status = %q, want completed", status)
	}
	if ignored != 1 {
		t.Errorf("errors_ignored = %d, want 1", ignored)
	}
	if items != itemsTotal {
		t.Errorf("items processed/total = %d/%d, want balanced", items, itemsTotal)
	}
	if bytes != bytesTotal {
		t.Errorf("bytes processed/total = %d/%d, want balanced", bytes, bytesTotal)
	}
	if items != 1 || bytes != int64(len("alpha")) {
		t.Errorf("processed = %d items / %d bytes, want the copied file only", items, bytes)
	}
}

// TestManagerRejectsConcurrentRuns verifies only one run can be active:
// a second Start while the first waits on an error prompt is refused.
func TestManagerRejectsConcurrentRuns(t *testing.T) {
	database := openTestDB(t)
	base := t.TempDir()

	src := filepath.Join(base, "src")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	// The target root is a regular file, so MkdirAll fails and the copy
	// raises an error prompt that keeps the run alive.
	target := filepath.Join(base, "not-a-dir")
	writeFile(t, target, "blocker")

	cfg := &config.Config{
		FolderPairs:      []config.FolderPair{{Source: src, Target: filepath.Join(target, "sub")}},
		WorkersPerDevice: 1,
		ErrorMode:        config.ErrorModePrompt,
		PromptTimeoutSec: 60,
	}

	m := NewManager(database, cfg)
	active, err := m.Start(context.Background(), "test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for the run to hit the prompt.
	deadline := time.Now().Add(5 * time.Second)
	for active.Gate.Pending() == nil {
		if time.Now().After(deadline) {
			t.Fatal("error prompt never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := m.Start(context.Background(), "test"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	if err := active.Gate.Answer(parallel.Ignore); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	waitRunDone(t, m)

	var status string
	var ignored int64
	err = database.QueryRow(
		`SELECT status, errors_ignored FROM run_history WHERE id = ?`, active.ID,
	).Scan(&status, &ignored)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusCompleted {
		t.Errorf("status = %q, want completed", status)
	}
	if ignored != 1 {
		t.Errorf("errors_ignored = %d, want 1", ignored)
	}
}

// TestManagerCancelFinishesAsCancelled verifies Cancel aborts a run blocked
// on a prompt and the record ends up cancelled.
func TestManagerCancelFinishesAsCancelled(t *testing.T) {
	database := openTestDB(t)
	base := t.TempDir()

	src := filepath.Join(base, "src")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	target := filepath.Join(base, "not-a-dir")
	writeFile(t, target, "blocker")

	cfg := &config.Config{
		FolderPairs:      []config.FolderPair{{Source: src, Target: filepath.Join(target, "sub")}},
		WorkersPerDevice: 1,
		ErrorMode:        config.ErrorModePrompt,
		PromptTimeoutSec: 60,
	}

	m := NewManager(database, cfg)
	active, err := m.Start(context.Background(), "test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for active.Gate.Pending() == nil {
		if time.Now().After(deadline) {
			t.Fatal("error prompt never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := m.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitRunDone(t, m)

	var status string
	if err := database.QueryRow(`SELECT status FROM run_history WHERE id = ?`, active.ID).Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", status)
	}
}

// TestManagerCancelWithoutRun verifies Cancel without an active run fails.
func TestManagerCancelWithoutRun(t *testing.T) {
	m := NewManager(openTestDB(t), &config.Config{WorkersPerDevice: 1, ErrorMode: config.ErrorModeIgnore})
	if _, err := m.Cancel(); !errors.Is(err, ErrNoActiveRun) {
		t.Errorf("Cancel = %v, want ErrNoActiveRun", err)
	}
}
