package app

import (
	"os"
	"path/filepath"
	"testing"

	"moltd/internal/config"
	"moltd/internal/journal"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Moltbook.APIKey = "test-key"
	cfg.Project.Dir = t.TempDir()
	cfg.Project.Name = "CatGame"
	return cfg
}

func TestNewApp_RequiresAPIKey(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Moltbook.APIKey = ""

	if _, err := NewApp(cfg, Options{}); err == nil {
		t.Fatal("NewApp() accepted a config without an API key")
	}
}

func TestNewApp_DryRunUsesMemoryJournal(t *testing.T) {
	cfg := newTestConfig(t)

	a, err := NewApp(cfg, Options{DryRun: true})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer a.Close()

	if _, ok := a.Journal().(*journal.MemoryJournal); !ok {
		t.Errorf("dry-run journal = %T, want *journal.MemoryJournal", a.Journal())
	}
	if _, err := os.Stat(filepath.Join(cfg.Journal.DataDir, "journal.db")); !os.IsNotExist(err) {
		t.Error("dry run created the sqlite journal on disk")
	}
}

func TestNewApp_ConfiguredJournalWithoutDryRun(t *testing.T) {
	cfg := newTestConfig(t)

	a, err := NewApp(cfg, Options{})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer a.Close()

	if _, ok := a.Journal().(*journal.MemoryJournal); ok {
		t.Error("non-dry run fell back to the memory journal")
	}
	if _, err := os.Stat(filepath.Join(cfg.Journal.DataDir, "journal.db")); err != nil {
		t.Errorf("sqlite journal not created: %v", err)
	}
}
