package detect

import (
	"path/filepath"
	"strings"
)

// DefaultIgnorePatterns are always excluded from filesystem scans. Build
// output and tool caches churn constantly and would make every scan look
// like a project change.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"vendor",
	"__pycache__",
	".venv",
	"dist",
	"build",
	"target",
	".idea",
	".vscode",
	"*.log",
}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = basename only
}

// IgnoreMatcher checks scan paths against a set of ignore patterns.
// Patterns without '/' match against the path's basename only. Patterns
// with '/' match against the full relative path from the project root.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank entries and entries starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the given relative path should be ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		var matched bool
		var err error
		if p.matchPath {
			matched, err = filepath.Match(p.pattern, normalized)
		} else {
			matched, err = filepath.Match(p.pattern, basename)
		}
		if err != nil {
			// Bad pattern, skip rather than crash.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
