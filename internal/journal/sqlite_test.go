package journal

import (
	"path/filepath"
	"testing"
	"time"

	"moltd/internal/config"
	"moltd/internal/daemon"
)

var journalTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteJournal() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSQLiteJournal_Iterations(t *testing.T) {
	j := newTestJournal(t)

	for i, outcome := range []string{"no-change", "posted", "error"} {
		id, err := j.RecordIteration(daemon.IterationRecord{
			StartedAt:  journalTime.Add(time.Duration(i) * time.Hour),
			FinishedAt: journalTime.Add(time.Duration(i)*time.Hour + time.Second),
			Mode:       "git",
			Outcome:    outcome,
			Detail:     "detail-" + outcome,
		})
		if err != nil {
			t.Fatalf("RecordIteration() error = %v", err)
		}
		if id != int64(i+1) {
			t.Errorf("id = %d, want %d", id, i+1)
		}
	}

	recs, err := j.ListIterations(2)
	if err != nil {
		t.Fatalf("ListIterations() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].Outcome != "error" || recs[1].Outcome != "posted" {
		t.Errorf("ordering wrong: %q, %q (want newest first)", recs[0].Outcome, recs[1].Outcome)
	}
	if !recs[0].StartedAt.Equal(journalTime.Add(2 * time.Hour)) {
		t.Errorf("StartedAt = %v", recs[0].StartedAt)
	}
	if recs[0].Mode != "git" || recs[0].Detail != "detail-error" {
		t.Errorf("record = %+v", recs[0])
	}
}

func TestSQLiteJournal_Posts(t *testing.T) {
	j := newTestJournal(t)

	err := j.RecordPost(daemon.PostRecord{
		PostID:      "p1",
		Submolt:     "catgame",
		Title:       "CatGame update",
		Fingerprint: "abc123",
		PostedAt:    journalTime,
	})
	if err != nil {
		t.Fatalf("RecordPost() error = %v", err)
	}

	posts, err := j.ListPosts(0)
	if err != nil {
		t.Fatalf("ListPosts() error = %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("len = %d, want 1", len(posts))
	}
	p := posts[0]
	if p.PostID != "p1" || p.Submolt != "catgame" || p.Fingerprint != "abc123" {
		t.Errorf("record = %+v", p)
	}
	if !p.PostedAt.Equal(journalTime) {
		t.Errorf("PostedAt = %v, want %v", p.PostedAt, journalTime)
	}
}

func TestSQLiteJournal_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.RecordIteration(daemon.IterationRecord{Outcome: "posted"}); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening runs the migrations again; they must be a no-op.
	j2, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer j2.Close()

	recs, err := j2.ListIterations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Outcome != "posted" {
		t.Errorf("records lost across reopen: %+v", recs)
	}
}

func TestMemoryJournal(t *testing.T) {
	j := NewMemoryJournal()

	for _, outcome := range []string{"a", "b", "c"} {
		if _, err := j.RecordIteration(daemon.IterationRecord{Outcome: outcome}); err != nil {
			t.Fatal(err)
		}
	}

	recs, _ := j.ListIterations(2)
	if len(recs) != 2 || recs[0].Outcome != "c" || recs[1].Outcome != "b" {
		t.Errorf("ListIterations(2) = %+v, want newest first", recs)
	}

	if err := j.RecordPost(daemon.PostRecord{PostID: "p1"}); err != nil {
		t.Fatal(err)
	}
	posts, _ := j.ListPosts(0)
	if len(posts) != 1 || posts[0].PostID != "p1" {
		t.Errorf("ListPosts() = %+v", posts)
	}
}

func TestNewJournalFromConfig(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		j, err := NewJournalFromConfig(config.JournalConfig{Type: "sqlite", DataDir: t.TempDir()})
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		defer j.Close()
		if _, ok := j.(*SQLiteJournal); !ok {
			t.Errorf("type = %T", j)
		}
	})

	t.Run("sqlite without data_dir", func(t *testing.T) {
		if _, err := NewJournalFromConfig(config.JournalConfig{Type: "sqlite"}); err == nil {
			t.Error("want error for missing data_dir")
		}
	})

	t.Run("memory", func(t *testing.T) {
		j, err := NewJournalFromConfig(config.JournalConfig{Type: "memory"})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := j.(*MemoryJournal); !ok {
			t.Errorf("type = %T", j)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := NewJournalFromConfig(config.JournalConfig{Type: "papyrus"}); err == nil {
			t.Error("want error for unknown type")
		}
	})
}
