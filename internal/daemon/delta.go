package daemon

// DetectMode identifies the change-detection strategy that produced a delta.
type DetectMode string

const (
	// ModeGit means the project is a git work tree and snapshots are
	// revision identifiers.
	ModeGit DetectMode = "git"

	// ModeScan means snapshots are content fingerprints over a filesystem
	// walk. Commits are always empty in this mode.
	ModeScan DetectMode = "scan"
)

// DeltaKind is the tagged variant of a detection result.
type DeltaKind int

const (
	// NoBaseline means there was no prior snapshot: first run. The caller
	// should establish a baseline rather than treat this as a change.
	NoBaseline DeltaKind = iota

	// NoChange means the current snapshot equals the last recorded one.
	NoChange

	// Changed means the project moved from the previous snapshot.
	Changed
)

func (k DeltaKind) String() string {
	switch k {
	case NoBaseline:
		return "no-baseline"
	case NoChange:
		return "no-change"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// CommitRef is one commit in a delta, newest first.
type CommitRef struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// ProjectDelta is the result of one change detection. SnapshotID is always
// set to the current snapshot, including for NoBaseline and NoChange, so the
// caller can record a baseline. Commits are newest-first and capped; Files
// are deduplicated in first-occurrence order and capped. MoreCommits and
// MoreFiles indicate entries were dropped by the caps.
type ProjectDelta struct {
	Kind        DeltaKind
	Mode        DetectMode
	SnapshotID  string
	Commits     []CommitRef
	Files       []string
	MoreCommits bool
	MoreFiles   bool

	// Manifest is the scan-mode file manifest for the current snapshot.
	// Persisted with the baseline so the next detection can enumerate
	// added, changed, and removed files. Nil in git mode.
	Manifest ScanManifest
}

// Baseline is the previously recorded snapshot handed to a Detector.
type Baseline struct {
	SnapshotID string
	Manifest   ScanManifest
}
