package detect

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"moltd/internal/daemon"
)

// GitRunner executes git commands in a fixed working directory. Tests
// substitute a scripted implementation.
type GitRunner interface {
	// Run executes `git args...` and returns trimmed stdout. A non-zero
	// exit status is an error carrying stderr.
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecGitRunner runs the real git binary.
type ExecGitRunner struct {
	Dir string
}

var _ GitRunner = (*ExecGitRunner)(nil)

func (g *ExecGitRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(string(exitErr.Stderr))
			if msg == "" {
				msg = strings.TrimSpace(string(out))
			}
			return "", fmt.Errorf("git %s: %s", args[0], msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

// isUnknownRevision reports whether err is git failing to resolve a
// revision. This is what a force-push plus gc, a re-clone, or a re-init
// does to a recorded baseline: the commit simply no longer exists.
func isUnknownRevision(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unknown revision") ||
		strings.Contains(msg, "invalid revision range") ||
		strings.Contains(msg, "bad revision")
}

// gitProbe answers strategy selection: is this directory a git work tree?
// Returns false on any failure, including git not being installed.
func gitProbe(ctx context.Context, g GitRunner) bool {
	out, err := g.Run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false
	}
	return strings.EqualFold(out, "true")
}

// gitHead returns the current HEAD revision.
func gitHead(ctx context.Context, g GitRunner) (string, error) {
	return g.Run(ctx, "rev-parse", "HEAD")
}

// gitCommitsSince lists commits newest first, as oneline entries. since
// may be empty for "the newest max entries from HEAD". Returns whether
// more commits were dropped by the cap.
func gitCommitsSince(ctx context.Context, g GitRunner, since string, max int) ([]daemon.CommitRef, bool, error) {
	rev := "HEAD"
	if since != "" {
		rev = since + "..HEAD"
	}
	// Ask for one extra to learn whether the cap truncated.
	out, err := g.Run(ctx, "log", rev, "--oneline", fmt.Sprintf("--max-count=%d", max+1), "--no-decorate")
	if err != nil {
		return nil, false, err
	}

	var commits []daemon.CommitRef
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, summary, _ := strings.Cut(line, " ")
		commits = append(commits, daemon.CommitRef{ID: id, Summary: summary})
	}

	more := false
	if len(commits) > max {
		commits = commits[:max]
		more = true
	}
	return commits, more, nil
}

// gitChangedFiles lists paths touched between since and HEAD, parsed from
// name-status output, deduplicated in first-occurrence order.
func gitChangedFiles(ctx context.Context, g GitRunner, since string, max int) ([]string, bool, error) {
	if since == "" {
		return nil, false, nil
	}
	out, err := g.Run(ctx, "diff", "--name-status", since+"..HEAD")
	if err != nil {
		return nil, false, err
	}

	var files []string
	seen := make(map[string]bool)
	more := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Format: "M\tpath" or "R100\told\tnew"; keep the last field.
		fields := strings.Split(line, "\t")
		path := fields[len(fields)-1]
		if path == "" || seen[path] {
			continue
		}
		if len(files) >= max {
			more = true
			break
		}
		seen[path] = true
		files = append(files, path)
	}
	return files, more, nil
}
