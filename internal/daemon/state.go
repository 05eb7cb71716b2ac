package daemon

import "time"

// StateVersion is the current on-disk state schema version.
const StateVersion = 1

// FileMeta is one manifest entry for the filesystem-scan strategy.
type FileMeta struct {
	Size    int64 `json:"size"`
	ModTime int64 `json:"mtime"`
}

// ScanManifest maps project-relative paths to their last observed metadata.
type ScanManifest map[string]FileMeta

// State is the daemon's persisted cross-run state. The state file is the
// sole source of truth for cooldown and delta computation; it must survive
// process restarts. All components receive it by value and mutations flow
// back only through the posting coordinator's commit step.
type State struct {
	Version        int         `json:"version"`
	LastSnapshotID string      `json:"last_snapshot_id,omitempty"`
	LastCommits    []CommitRef `json:"last_commits,omitempty"`
	LastFiles      []string    `json:"last_files,omitempty"`

	// LastPostAt is the instant of the last confirmed successful post.
	// Once set it is monotonically non-decreasing.
	LastPostAt *time.Time `json:"last_post_at,omitempty"`

	IntroPosted bool `json:"intro_posted,omitempty"`

	// CooldownUntil records a server-reported cooldown boundary from a 429.
	// It overrides the locally computed estimate until it passes.
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`

	ScanManifest    ScanManifest      `json:"scan_manifest,omitempty"`
	AgentName       string            `json:"agent_name,omitempty"`
	RepliedComments map[string]string `json:"replied_comments,omitempty"`
	LastRunAt       *time.Time        `json:"last_run_at,omitempty"`
}

// NewState returns an empty state at the current schema version.
func NewState() State {
	return State{Version: StateVersion}
}

// CooldownRemaining returns how long posting stays blocked at now, given the
// local cooldown interval. A server-reported CooldownUntil that reaches
// further than the local estimate wins; one that has already passed is
// ignored.
func (s *State) CooldownRemaining(now time.Time, interval time.Duration) time.Duration {
	var until time.Time
	if s.LastPostAt != nil {
		until = s.LastPostAt.Add(interval)
	}
	if s.CooldownUntil != nil && s.CooldownUntil.After(until) {
		until = *s.CooldownUntil
	}
	if remaining := until.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// RecordPost marks a confirmed successful post at now. LastPostAt never
// moves backwards; a stale server cooldown marker is cleared.
func (s *State) RecordPost(now time.Time) {
	if s.LastPostAt == nil || now.After(*s.LastPostAt) {
		t := now.UTC()
		s.LastPostAt = &t
	}
	s.CooldownUntil = nil
}

// RecordServerCooldown stores the authoritative cooldown boundary reported
// by a 429 response.
func (s *State) RecordServerCooldown(until time.Time) {
	t := until.UTC()
	s.CooldownUntil = &t
}

// RecordSnapshot commits a detected delta as the new baseline: snapshot id,
// display lists (already capped by the detector), and the scan manifest when
// the scan strategy produced one.
func (s *State) RecordSnapshot(delta ProjectDelta) {
	if delta.SnapshotID != "" {
		s.LastSnapshotID = delta.SnapshotID
	}
	if len(delta.Commits) > 0 {
		s.LastCommits = delta.Commits
	}
	if len(delta.Files) > 0 {
		s.LastFiles = delta.Files
	}
	if delta.Mode == ModeScan && delta.Manifest != nil {
		s.ScanManifest = delta.Manifest
	}
}

// MarkReplied records that a comment was answered, keyed by comment id with
// the reply's dedupe hash.
func (s *State) MarkReplied(commentID, replyHash string) {
	if s.RepliedComments == nil {
		s.RepliedComments = make(map[string]string)
	}
	s.RepliedComments[commentID] = replyHash
}

// Replied reports whether a comment was already answered.
func (s *State) Replied(commentID string) bool {
	_, ok := s.RepliedComments[commentID]
	return ok
}
