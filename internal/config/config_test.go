package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"moltd/internal/moltbook"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/home/user/.local/share/moltd")
	original.Moltbook.APIKey = "mk-test-key"
	original.Moltbook.Submolt = "catgame"
	original.Project.Dir = "/home/user/projects/catgame"
	original.Project.Name = "CatGame"
	original.Project.Ignore = []string{"*.tmp", "scratch"}
	original.Posting.Enabled = true
	original.Archive = ArchiveConfig{
		Type:     "s3",
		S3Bucket: "moltd-archives",
		S3Prefix: "prod/",
		S3Region: "us-east-1",
	}
	original.Encryption.Type = "age"

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.Moltbook.APIKey != "mk-test-key" {
		t.Errorf("APIKey = %q", got.Moltbook.APIKey)
	}
	if got.Moltbook.Submolt != "catgame" {
		t.Errorf("Submolt = %q", got.Moltbook.Submolt)
	}
	if got.Project.Name != "CatGame" {
		t.Errorf("Project.Name = %q", got.Project.Name)
	}
	if len(got.Project.Ignore) != 2 || got.Project.Ignore[0] != "*.tmp" {
		t.Errorf("Project.Ignore = %v", got.Project.Ignore)
	}
	if !got.Posting.Enabled {
		t.Error("Posting.Enabled lost")
	}
	if got.Archive.Type != "s3" || got.Archive.S3Bucket != "moltd-archives" {
		t.Errorf("Archive = %+v", got.Archive)
	}
	if got.Encryption.Type != "age" {
		t.Errorf("Encryption.Type = %q", got.Encryption.Type)
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig("/data/moltd")

	if cfg.Moltbook.BaseURL != moltbook.CanonicalBase {
		t.Errorf("BaseURL = %q", cfg.Moltbook.BaseURL)
	}
	if cfg.Moltbook.TimeoutS != 30 || cfg.Moltbook.Retries != 2 {
		t.Errorf("timeout/retries = %d/%d", cfg.Moltbook.TimeoutS, cfg.Moltbook.Retries)
	}
	if cfg.Posting.IntervalS != 1800 {
		t.Errorf("IntervalS = %d", cfg.Posting.IntervalS)
	}
	if cfg.Posting.CooldownMinutes != 30 {
		t.Errorf("CooldownMinutes = %d", cfg.Posting.CooldownMinutes)
	}
	if cfg.State.File != "/data/moltd/state.json" {
		t.Errorf("State.File = %q", cfg.State.File)
	}
	if cfg.Journal.Type != "sqlite" {
		t.Errorf("Journal.Type = %q", cfg.Journal.Type)
	}
	if cfg.Archive.Type != "none" || cfg.Encryption.Type != "none" {
		t.Errorf("archive/encryption = %q/%q", cfg.Archive.Type, cfg.Encryption.Type)
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("MOLTBOOK_API_KEY", "mk-from-env")
	t.Setenv("MOLTBOOK_SUBMOLT", "envsub")
	t.Setenv("PROJECT_DIR", "/env/project")
	t.Setenv("MAX_COMMITS", "7")
	t.Setenv("INTERVAL", "not-a-number")

	cfg := NewConfig(t.TempDir())
	cfg.Moltbook.Submolt = "filesub"
	cfg.ApplyEnv()

	if cfg.Moltbook.APIKey != "mk-from-env" {
		t.Errorf("APIKey = %q", cfg.Moltbook.APIKey)
	}
	if cfg.Moltbook.Submolt != "envsub" {
		t.Error("env should win over file value")
	}
	if cfg.Project.Dir != "/env/project" {
		t.Errorf("Project.Dir = %q", cfg.Project.Dir)
	}
	if cfg.Project.MaxCommits != 7 {
		t.Errorf("MaxCommits = %d", cfg.Project.MaxCommits)
	}
	if cfg.Posting.IntervalS != 1800 {
		t.Error("unparseable env int should be ignored")
	}
}

func TestConfig_Normalize(t *testing.T) {
	t.Run("rewrites apex base url", func(t *testing.T) {
		cfg := NewConfig(t.TempDir())
		cfg.Moltbook.BaseURL = "https://moltbook.com/api/v1"
		if err := cfg.Normalize(); err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if !strings.HasPrefix(cfg.Moltbook.BaseURL, "https://www.moltbook.com") {
			t.Errorf("BaseURL = %q, want www host", cfg.Moltbook.BaseURL)
		}
	})

	t.Run("rejects garbage base url", func(t *testing.T) {
		cfg := NewConfig(t.TempDir())
		cfg.Moltbook.BaseURL = "not a url"
		if err := cfg.Normalize(); err == nil {
			t.Error("Normalize() accepted an invalid base url")
		}
	})

	t.Run("derives project name from dir", func(t *testing.T) {
		cfg := NewConfig(t.TempDir())
		cfg.Project.Dir = "/home/user/projects/catgame/"
		if err := cfg.Normalize(); err != nil {
			t.Fatal(err)
		}
		if cfg.Project.Name != "catgame" {
			t.Errorf("Project.Name = %q, want catgame", cfg.Project.Name)
		}
	})

	t.Run("fills zero values", func(t *testing.T) {
		cfg := &Config{}
		if err := cfg.Normalize(); err != nil {
			t.Fatal(err)
		}
		if cfg.Moltbook.TimeoutS != 30 || cfg.Posting.IntervalS != 1800 {
			t.Errorf("defaults not filled: %+v", cfg)
		}
		if cfg.Journal.Type != "memory" || cfg.Archive.Type != "none" {
			t.Errorf("type defaults not filled: %q/%q", cfg.Journal.Type, cfg.Archive.Type)
		}
	})
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "moltd.toml")
	cfg := NewConfig(t.TempDir())

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := Init(path, cfg); err == nil {
		t.Error("Init() should refuse to overwrite an existing file")
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.Journal.Type != "sqlite" {
		t.Errorf("Journal.Type = %q", got.Journal.Type)
	}
}
