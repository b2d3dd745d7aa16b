package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadMissingFileReturnsDefaults verifies a missing config file yields
// a usable default configuration.
func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.WorkersPerDevice != 1 {
		t.Errorf("WorkersPerDevice = %d, want 1", cfg.WorkersPerDevice)
	}
	if cfg.ErrorMode != ErrorModePrompt {
		t.Errorf("ErrorMode = %q, want %q", cfg.ErrorMode, ErrorModePrompt)
	}
}

// TestLoadParsesFolderPairs verifies a full config round-trips.
func TestLoadParsesFolderPairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
folder_pairs:
  - source: /mnt/photos
    target: /backup/photos
  - source: /mnt/docs
    target: /backup/docs
schedule: "30 1 * * *"
error_mode: ignore
workers_per_device: 2
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.FolderPairs) != 2 {
		t.Fatalf("got %d folder pairs, want 2", len(cfg.FolderPairs))
	}
	if cfg.FolderPairs[0].Source != "/mnt/photos" || cfg.FolderPairs[0].Target != "/backup/photos" {
		t.Errorf("pair[0] = %+v", cfg.FolderPairs[0])
	}
	if cfg.ErrorMode != ErrorModeIgnore {
		t.Errorf("ErrorMode = %q, want ignore", cfg.ErrorMode)
	}
	if cfg.WorkersPerDevice != 2 {
		t.Errorf("WorkersPerDevice = %d, want 2", cfg.WorkersPerDevice)
	}
}

// TestLoadRejectsUnknownFields verifies strict decoding catches typos.
func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("fodler_pairs: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

// TestLoadRejectsInvalidErrorMode verifies validation of the prompt policy.
func TestLoadRejectsInvalidErrorMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("error_mode: explode\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid error_mode")
	}
}

// TestLoadRejectsIncompletePair verifies a pair missing its target fails.
func TestLoadRejectsIncompletePair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("folder_pairs:\n  - source: /a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for incomplete folder pair")
	}
}
