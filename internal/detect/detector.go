// Package detect computes project deltas for the daemon. A git work tree
// is tracked by revision; anything else falls back to a filesystem scan
// with a metadata manifest.
package detect

import (
	"context"
	"fmt"

	"moltd/internal/daemon"
)

// Default display caps for commits and files in a delta.
const (
	DefaultMaxCommits = 10
	DefaultMaxFiles   = 25
)

// Options configures a Detector.
type Options struct {
	ProjectDir string

	// MaxCommits and MaxFiles cap the display lists in a delta.
	// Zero selects the defaults.
	MaxCommits int
	MaxFiles   int

	// ExtraIgnores are scan-mode ignore patterns added on top of
	// DefaultIgnorePatterns.
	ExtraIgnores []string

	// Git overrides the git runner (tests). Nil selects ExecGitRunner.
	Git GitRunner

	Logger daemon.Logger
}

// Detector implements daemon.Detector. Strategy selection happens once per
// Detect call: git when the project is a work tree, scan otherwise.
type Detector struct {
	dir        string
	maxCommits int
	maxFiles   int
	git        GitRunner
	ignore     *IgnoreMatcher
	log        daemon.Logger
}

var _ daemon.Detector = (*Detector)(nil)

// NewDetector creates a Detector for opts.ProjectDir.
func NewDetector(opts Options) *Detector {
	if opts.MaxCommits <= 0 {
		opts.MaxCommits = DefaultMaxCommits
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.Git == nil {
		opts.Git = &ExecGitRunner{Dir: opts.ProjectDir}
	}
	if opts.Logger == nil {
		opts.Logger = daemon.NewNopLogger()
	}
	patterns := append([]string{}, DefaultIgnorePatterns...)
	patterns = append(patterns, opts.ExtraIgnores...)
	return &Detector{
		dir:        opts.ProjectDir,
		maxCommits: opts.MaxCommits,
		maxFiles:   opts.MaxFiles,
		git:        opts.Git,
		ignore:     NewIgnoreMatcher(patterns),
		log:        opts.Logger,
	}
}

// Detect computes the delta from the recorded baseline to the project's
// current state. Errors are returned, never converted to a NoChange
// result: the caller must be able to tell "nothing happened" from "could
// not look".
func (d *Detector) Detect(ctx context.Context, prev daemon.Baseline) (daemon.ProjectDelta, error) {
	if gitProbe(ctx, d.git) {
		return d.detectGit(ctx, prev)
	}
	return d.detectScan(ctx, prev)
}

func (d *Detector) detectGit(ctx context.Context, prev daemon.Baseline) (daemon.ProjectDelta, error) {
	head, err := gitHead(ctx, d.git)
	if err != nil {
		return daemon.ProjectDelta{}, fmt.Errorf("resolve head: %w", err)
	}

	delta := daemon.ProjectDelta{Mode: daemon.ModeGit, SnapshotID: head}

	if prev.SnapshotID == "" {
		// First run: include recent commits for visibility, but this is a
		// baseline, not a change.
		commits, more, err := gitCommitsSince(ctx, d.git, "", d.maxCommits)
		if err != nil {
			return daemon.ProjectDelta{}, fmt.Errorf("list commits: %w", err)
		}
		delta.Kind = daemon.NoBaseline
		delta.Commits = commits
		delta.MoreCommits = more
		return delta, nil
	}

	if head == prev.SnapshotID {
		delta.Kind = daemon.NoChange
		return delta, nil
	}

	commits, moreCommits, err := gitCommitsSince(ctx, d.git, prev.SnapshotID, d.maxCommits)
	if err != nil {
		if !isUnknownRevision(err) {
			return daemon.ProjectDelta{}, fmt.Errorf("list commits since %s: %w", prev.SnapshotID, err)
		}
		// The baseline revision is gone (force-push plus gc, re-clone,
		// re-init). Report a change with an empty commit list so the new
		// head becomes the next baseline; erroring here would wedge the
		// daemon on every iteration.
		d.log.Warn("baseline revision no longer exists, re-baselining", "baseline", prev.SnapshotID)
		delta.Kind = daemon.Changed
		return delta, nil
	}
	files, moreFiles, err := gitChangedFiles(ctx, d.git, prev.SnapshotID, d.maxFiles)
	if err != nil {
		if !isUnknownRevision(err) {
			return daemon.ProjectDelta{}, fmt.Errorf("list changed files since %s: %w", prev.SnapshotID, err)
		}
		d.log.Warn("baseline revision no longer exists, re-baselining", "baseline", prev.SnapshotID)
		delta.Kind = daemon.Changed
		delta.Commits = commits
		delta.MoreCommits = moreCommits
		return delta, nil
	}

	// HEAD moved; the commit list may still come back empty when HEAD was
	// reset to an ancestor of the baseline. Either way it is a change.
	delta.Kind = daemon.Changed
	delta.Commits = commits
	delta.Files = files
	delta.MoreCommits = moreCommits
	delta.MoreFiles = moreFiles
	return delta, nil
}

func (d *Detector) detectScan(ctx context.Context, prev daemon.Baseline) (daemon.ProjectDelta, error) {
	manifest, err := scanProject(ctx, d.dir, d.ignore)
	if err != nil {
		return daemon.ProjectDelta{}, err
	}

	delta := daemon.ProjectDelta{
		Mode:       daemon.ModeScan,
		SnapshotID: manifestFingerprint(manifest),
		Manifest:   manifest,
	}

	if prev.SnapshotID == "" {
		delta.Kind = daemon.NoBaseline
		return delta, nil
	}
	if delta.SnapshotID == prev.SnapshotID {
		delta.Kind = daemon.NoChange
		return delta, nil
	}

	files, more := diffManifests(prev.Manifest, manifest, d.maxFiles)
	delta.Kind = daemon.Changed
	delta.Files = files
	delta.MoreFiles = more
	return delta, nil
}
