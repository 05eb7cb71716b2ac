package daemon

import (
	"testing"
	"time"
)

var stateNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestState_CooldownRemaining(t *testing.T) {
	interval := 30 * time.Minute

	tests := []struct {
		name     string
		lastPost time.Duration // how long ago the last post was; 0 = never
		server   time.Duration // server cooldown boundary from now; 0 = none
		want     time.Duration
	}{
		{"never posted", 0, 0, 0},
		{"posted 10m ago", 10 * time.Minute, 0, 20 * time.Minute},
		{"posted 30m ago", 30 * time.Minute, 0, 0},
		{"posted 45m ago", 45 * time.Minute, 0, 0},
		{"server boundary extends local", 10 * time.Minute, 25 * time.Minute, 25 * time.Minute},
		{"server boundary shorter than local is ignored", 10 * time.Minute, 5 * time.Minute, 20 * time.Minute},
		{"expired server boundary ignored", 45 * time.Minute, -5 * time.Minute, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewState()
			if tt.lastPost != 0 {
				at := stateNow.Add(-tt.lastPost)
				st.LastPostAt = &at
			}
			if tt.server != 0 {
				until := stateNow.Add(tt.server)
				st.CooldownUntil = &until
			}
			if got := st.CooldownRemaining(stateNow, interval); got != tt.want {
				t.Errorf("CooldownRemaining() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_RecordPostMonotone(t *testing.T) {
	st := NewState()
	st.RecordPost(stateNow)
	if st.LastPostAt == nil || !st.LastPostAt.Equal(stateNow) {
		t.Fatalf("LastPostAt = %v, want %v", st.LastPostAt, stateNow)
	}

	// An earlier timestamp must not move LastPostAt backwards.
	st.RecordPost(stateNow.Add(-time.Hour))
	if !st.LastPostAt.Equal(stateNow) {
		t.Errorf("LastPostAt moved backwards to %v", st.LastPostAt)
	}

	st.RecordPost(stateNow.Add(time.Hour))
	if !st.LastPostAt.Equal(stateNow.Add(time.Hour)) {
		t.Errorf("LastPostAt = %v, want advanced", st.LastPostAt)
	}
}

func TestState_RecordPostClearsServerCooldown(t *testing.T) {
	st := NewState()
	st.RecordServerCooldown(stateNow.Add(20 * time.Minute))
	st.RecordPost(stateNow.Add(25 * time.Minute))
	if st.CooldownUntil != nil {
		t.Error("CooldownUntil should be cleared by a confirmed post")
	}
}

func TestState_RecordSnapshot(t *testing.T) {
	st := NewState()
	st.RecordSnapshot(ProjectDelta{
		Kind:       Changed,
		Mode:       ModeGit,
		SnapshotID: "head1",
		Commits:    []CommitRef{{ID: "head1", Summary: "x"}},
		Files:      []string{"a.go"},
	})
	if st.LastSnapshotID != "head1" {
		t.Errorf("LastSnapshotID = %q", st.LastSnapshotID)
	}
	if len(st.LastCommits) != 1 || len(st.LastFiles) != 1 {
		t.Errorf("display lists not recorded: %+v", st)
	}

	// Scan mode stores the manifest.
	manifest := ScanManifest{"a.txt": {Size: 1, ModTime: 2}}
	st.RecordSnapshot(ProjectDelta{Kind: Changed, Mode: ModeScan, SnapshotID: "fp1", Manifest: manifest})
	if st.ScanManifest == nil {
		t.Error("scan manifest not recorded")
	}
}

func TestState_Replied(t *testing.T) {
	st := NewState()
	if st.Replied("c1") {
		t.Error("fresh state claims a reply")
	}
	st.MarkReplied("c1", "hash1")
	if !st.Replied("c1") {
		t.Error("MarkReplied not visible")
	}
	if st.Replied("c2") {
		t.Error("wrong comment marked")
	}
}
