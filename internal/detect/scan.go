package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"

	"moltd/internal/daemon"
)

// scanProject walks the project directory and builds the current file
// manifest. Unreadable entries abort the scan; a partial manifest would
// later diff as a burst of fake removals.
func scanProject(ctx context.Context, root string, ignore *IgnoreMatcher) (daemon.ScanManifest, error) {
	manifest := make(daemon.ScanManifest)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}

		if ignore.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		manifest[filepath.ToSlash(rel)] = daemon.FileMeta{
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return manifest, nil
}

// manifestFingerprint derives the snapshot id for a manifest: a hash over
// the sorted (path, size, mtime) triples. Identical trees always produce
// the identical id.
func manifestFingerprint(m daemon.ScanManifest) string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		meta := m[p]
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(meta.Size, 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(meta.ModTime, 10)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// diffManifests lists paths that differ between the baseline and current
// manifests, labeled added/changed/removed, sorted within each group.
// Returns whether the cap dropped entries.
func diffManifests(prev, cur daemon.ScanManifest, max int) ([]string, bool) {
	var added, changed, removed []string

	for p, meta := range cur {
		old, ok := prev[p]
		switch {
		case !ok:
			added = append(added, p)
		case old != meta:
			changed = append(changed, p)
		}
	}
	for p := range prev {
		if _, ok := cur[p]; !ok {
			removed = append(removed, p)
		}
	}
	sort.Strings(added)
	sort.Strings(changed)
	sort.Strings(removed)

	var out []string
	more := false
	appendGroup := func(label string, paths []string) {
		for _, p := range paths {
			if len(out) >= max {
				more = true
				return
			}
			out = append(out, label+" "+p)
		}
	}
	appendGroup("added:", added)
	appendGroup("changed:", changed)
	appendGroup("removed:", removed)

	if more {
		return out, true
	}
	return out, false
}
