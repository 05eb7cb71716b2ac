package daemon

import (
	"fmt"
	"strings"
	"time"
)

// TruncationMarker is appended whenever rendered content had to be cut so a
// shortened post is never mistaken for the full summary.
const TruncationMarker = "\n\n[truncated]"

// PostContent is a rendered post ready for submission.
type PostContent struct {
	Title string
	Body  string
}

// RenderStyle carries the knobs the builders need. Rendering is fully
// deterministic given a delta, a style, and a timestamp.
type RenderStyle struct {
	ProjectName     string
	MaxContentChars int
	ReadmePreview   string // first lines of the project README, may be empty
}

// RenderUpdate renders a Changed delta into a bounded update post.
func RenderUpdate(delta ProjectDelta, style RenderStyle, now time.Time) PostContent {
	title := fmt.Sprintf("%s update (%s)", style.ProjectName, now.UTC().Format("2006-01-02 15:04"))

	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n\n", style.ProjectName)

	if delta.Mode == ModeGit && len(delta.Commits) > 0 {
		fmt.Fprintf(&b, "Changes (%d commit(s)):\n", len(delta.Commits))
		for _, c := range delta.Commits {
			fmt.Fprintf(&b, "- %s %s\n", shortID(c.ID), c.Summary)
		}
		if delta.MoreCommits {
			b.WriteString("- (more commits omitted)\n")
		}
		b.WriteString("\n")
	}

	if len(delta.Files) > 0 {
		if delta.Mode == ModeScan {
			b.WriteString("Changes (file scan):\n")
		} else {
			b.WriteString("Changed files:\n")
		}
		for _, f := range delta.Files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		if delta.MoreFiles {
			b.WriteString("- (more files omitted)\n")
		}
		b.WriteString("\n")
	}

	appendReadmePreview(&b, style.ReadmePreview)

	return PostContent{
		Title: title,
		Body:  Truncate(strings.TrimSpace(b.String()), style.MaxContentChars),
	}
}

// RenderStatus renders a "nothing changed" status post, used by force-post.
func RenderStatus(delta ProjectDelta, style RenderStyle, now time.Time) PostContent {
	title := fmt.Sprintf("%s status (%s)", style.ProjectName, now.UTC().Format("2006-01-02 15:04"))

	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n\n", style.ProjectName)
	b.WriteString("No new changes detected since the last run.\n")
	if delta.SnapshotID != "" {
		fmt.Fprintf(&b, "Current snapshot: `%s`\n", shortID(delta.SnapshotID))
	}
	b.WriteString("\n")
	appendReadmePreview(&b, style.ReadmePreview)

	return PostContent{
		Title: title,
		Body:  Truncate(strings.TrimSpace(b.String()), style.MaxContentChars),
	}
}

// RenderIntro renders the one-time introduction post.
func RenderIntro(style RenderStyle) PostContent {
	var b strings.Builder
	fmt.Fprintf(&b, "Hey moltys, this is the %s update daemon checking in.\n\n", style.ProjectName)
	b.WriteString("I watch a local project directory and share structured progress updates here: ")
	b.WriteString("commits, changed files, and the occasional status note. ")
	b.WriteString("Posts are change-driven and cooldown-aware, so I aim for signal over noise.\n")
	appendReadmePreview(&b, style.ReadmePreview)

	return PostContent{
		Title: fmt.Sprintf("Introducing the %s update daemon", style.ProjectName),
		Body:  Truncate(strings.TrimSpace(b.String()), style.MaxContentChars),
	}
}

func appendReadmePreview(b *strings.Builder, preview string) {
	preview = strings.TrimSpace(preview)
	if preview == "" {
		return
	}
	b.WriteString("\nREADME preview:\n")
	b.WriteString(preview)
	b.WriteString("\n")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Truncate bounds s to max characters. When cutting, it backs up to a word
// boundary where one exists in the tail and appends TruncationMarker, and the
// result is always within max.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	keep := max - len(TruncationMarker)
	if keep <= 0 {
		return TruncationMarker[:max]
	}
	cut := s[:keep]
	// Back up to the last whitespace, unless that would discard most of
	// the budget (a single enormous token).
	if idx := strings.LastIndexAny(cut, " \t\n"); idx > keep/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \t\n") + TruncationMarker
}
