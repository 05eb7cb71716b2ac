package detect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"moltd/internal/daemon"
)

// stubGit scripts git output per exact argument list.
type stubGit struct {
	out   map[string]string
	errs  map[string]error
	calls []string
}

func (g *stubGit) Run(ctx context.Context, args ...string) (string, error) {
	key := strings.Join(args, " ")
	g.calls = append(g.calls, key)
	if err, ok := g.errs[key]; ok {
		return "", err
	}
	if out, ok := g.out[key]; ok {
		return out, nil
	}
	return "", errors.New("unscripted git call: " + key)
}

func newGitDetector(git GitRunner, maxCommits, maxFiles int) *Detector {
	return NewDetector(Options{
		ProjectDir: "/project",
		MaxCommits: maxCommits,
		MaxFiles:   maxFiles,
		Git:        git,
	})
}

func TestDetect_GitNoBaseline(t *testing.T) {
	git := &stubGit{out: map[string]string{
		"rev-parse --is-inside-work-tree":                "true",
		"rev-parse HEAD":                                 "aaaa111",
		"log HEAD --oneline --max-count=11 --no-decorate": "aaaa111 initial commit",
	}}
	d := newGitDetector(git, 0, 0)

	delta, err := d.Detect(context.Background(), daemon.Baseline{})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if delta.Kind != daemon.NoBaseline {
		t.Errorf("Kind = %v, want NoBaseline", delta.Kind)
	}
	if delta.Mode != daemon.ModeGit {
		t.Errorf("Mode = %v", delta.Mode)
	}
	if delta.SnapshotID != "aaaa111" {
		t.Errorf("SnapshotID = %q", delta.SnapshotID)
	}
	if len(delta.Commits) != 1 || delta.Commits[0].Summary != "initial commit" {
		t.Errorf("Commits = %+v", delta.Commits)
	}
}

func TestDetect_GitNoChange(t *testing.T) {
	git := &stubGit{out: map[string]string{
		"rev-parse --is-inside-work-tree": "true",
		"rev-parse HEAD":                  "aaaa111",
	}}
	d := newGitDetector(git, 0, 0)

	delta, err := d.Detect(context.Background(), daemon.Baseline{SnapshotID: "aaaa111"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if delta.Kind != daemon.NoChange {
		t.Errorf("Kind = %v, want NoChange", delta.Kind)
	}
	for _, call := range git.calls {
		if strings.HasPrefix(call, "log") || strings.HasPrefix(call, "diff") {
			t.Errorf("unchanged head still ran %q", call)
		}
	}
}

func TestDetect_GitChanged(t *testing.T) {
	git := &stubGit{out: map[string]string{
		"rev-parse --is-inside-work-tree": "true",
		"rev-parse HEAD":                  "bbbb222",
		"log aaaa111..HEAD --oneline --max-count=11 --no-decorate": "bbbb222 add scoring\ncccc333 fix camera",
		"diff --name-status aaaa111..HEAD":                         "M\tmain.go\nA\tscore.go\nR100\told.go\tnew.go\nM\tmain.go",
	}}
	d := newGitDetector(git, 0, 0)

	delta, err := d.Detect(context.Background(), daemon.Baseline{SnapshotID: "aaaa111"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if delta.Kind != daemon.Changed {
		t.Fatalf("Kind = %v, want Changed", delta.Kind)
	}
	if delta.SnapshotID != "bbbb222" {
		t.Errorf("SnapshotID = %q", delta.SnapshotID)
	}
	if len(delta.Commits) != 2 {
		t.Fatalf("Commits = %+v", delta.Commits)
	}
	if delta.Commits[0].ID != "bbbb222" || delta.Commits[0].Summary != "add scoring" {
		t.Errorf("Commits[0] = %+v", delta.Commits[0])
	}

	want := []string{"main.go", "score.go", "new.go"}
	if len(delta.Files) != len(want) {
		t.Fatalf("Files = %v, want %v", delta.Files, want)
	}
	for i := range want {
		if delta.Files[i] != want[i] {
			t.Errorf("Files[%d] = %q, want %q", i, delta.Files[i], want[i])
		}
	}
	if delta.MoreCommits || delta.MoreFiles {
		t.Error("unexpected truncation flags")
	}
}

func TestDetect_GitCommitCapTruncates(t *testing.T) {
	git := &stubGit{out: map[string]string{
		"rev-parse --is-inside-work-tree": "true",
		"rev-parse HEAD":                  "dddd444",
		"log aaaa111..HEAD --oneline --max-count=3 --no-decorate": "dddd444 three\ncccc333 two\nbbbb222 one",
		"diff --name-status aaaa111..HEAD":                        "M\tmain.go",
	}}
	d := newGitDetector(git, 2, 0)

	delta, err := d.Detect(context.Background(), daemon.Baseline{SnapshotID: "aaaa111"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(delta.Commits) != 2 {
		t.Errorf("Commits = %d, want capped at 2", len(delta.Commits))
	}
	if !delta.MoreCommits {
		t.Error("MoreCommits not set after truncation")
	}
}

func TestDetect_GitRewrittenHistoryStillChanged(t *testing.T) {
	git := &stubGit{out: map[string]string{
		"rev-parse --is-inside-work-tree": "true",
		"rev-parse HEAD":                  "eeee555",
		"log aaaa111..HEAD --oneline --max-count=11 --no-decorate": "",
		"diff --name-status aaaa111..HEAD":                         "",
	}}
	d := newGitDetector(git, 0, 0)

	delta, err := d.Detect(context.Background(), daemon.Baseline{SnapshotID: "aaaa111"})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if delta.Kind != daemon.Changed {
		t.Errorf("Kind = %v, want Changed even with an empty commit range", delta.Kind)
	}
	if len(delta.Commits) != 0 {
		t.Errorf("Commits = %+v, want empty", delta.Commits)
	}
}

func TestDetect_GitVanishedBaselineRebaselines(t *testing.T) {
	// A force-push plus gc, a re-clone, or a re-init leaves the recorded
	// baseline pointing at a commit git can no longer resolve. That must
	// read as Changed, not as an error on every iteration.
	old := "0123456789012345678901234567890123456789"
	logKey := "log " + old + "..HEAD --oneline --max-count=11 --no-decorate"

	for name, logErr := range map[string]error{
		"invalid range": errors.New("git log: fatal: Invalid revision range " + old + "..HEAD"),
		"unknown rev":   errors.New("git log: fatal: ambiguous argument '" + old + "..HEAD': unknown revision or path not in the working tree."),
		"bad revision":  errors.New("git log: fatal: bad revision '" + old + "..HEAD'"),
	} {
		t.Run(name, func(t *testing.T) {
			git := &stubGit{
				out: map[string]string{
					"rev-parse --is-inside-work-tree": "true",
					"rev-parse HEAD":                  "eeee555",
				},
				errs: map[string]error{logKey: logErr},
			}
			d := newGitDetector(git, 0, 0)

			delta, err := d.Detect(context.Background(), daemon.Baseline{SnapshotID: old})
			if err != nil {
				t.Fatalf("Detect() error = %v, want re-baseline", err)
			}
			if delta.Kind != daemon.Changed {
				t.Errorf("Kind = %v, want Changed", delta.Kind)
			}
			if delta.SnapshotID != "eeee555" {
				t.Errorf("SnapshotID = %q, want the new head", delta.SnapshotID)
			}
			if len(delta.Commits) != 0 || len(delta.Files) != 0 {
				t.Errorf("Commits = %+v Files = %+v, want empty", delta.Commits, delta.Files)
			}
		})
	}
}

func TestDetect_GitHeadErrorPropagates(t *testing.T) {
	git := &stubGit{
		out:  map[string]string{"rev-parse --is-inside-work-tree": "true"},
		errs: map[string]error{"rev-parse HEAD": errors.New("fatal: bad object")},
	}
	d := newGitDetector(git, 0, 0)

	_, err := d.Detect(context.Background(), daemon.Baseline{SnapshotID: "aaaa111"})
	if err == nil {
		t.Fatal("Detect() should fail, not report a delta")
	}
}

func writeProjectFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newScanDetector(dir string) *Detector {
	// A failing probe forces scan mode.
	return NewDetector(Options{
		ProjectDir: dir,
		Git:        &stubGit{errs: map[string]error{"rev-parse --is-inside-work-tree": errors.New("not a repo")}},
	})
}

func TestDetect_ScanBaselineThenNoChange(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "main.py", "print('hi')")
	writeProjectFile(t, dir, "assets/cat.png", "png")
	writeProjectFile(t, dir, "node_modules/dep.js", "ignored")
	d := newScanDetector(dir)

	delta, err := d.Detect(context.Background(), daemon.Baseline{})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if delta.Kind != daemon.NoBaseline {
		t.Fatalf("Kind = %v, want NoBaseline", delta.Kind)
	}
	if delta.Mode != daemon.ModeScan {
		t.Errorf("Mode = %v", delta.Mode)
	}
	if len(delta.Manifest) != 2 {
		t.Errorf("Manifest = %v, want 2 entries (ignored dirs excluded)", delta.Manifest)
	}
	if _, ok := delta.Manifest["assets/cat.png"]; !ok {
		t.Error("nested file missing from manifest")
	}

	again, err := d.Detect(context.Background(), daemon.Baseline{
		SnapshotID: delta.SnapshotID,
		Manifest:   delta.Manifest,
	})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if again.Kind != daemon.NoChange {
		t.Errorf("Kind = %v, want NoChange on identical tree", again.Kind)
	}
}

func TestDetect_ScanChanged(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "main.py", "print('hi')")
	writeProjectFile(t, dir, "old.py", "x")
	d := newScanDetector(dir)

	base, err := d.Detect(context.Background(), daemon.Baseline{})
	if err != nil {
		t.Fatal(err)
	}

	writeProjectFile(t, dir, "main.py", "print('hi there, longer now')")
	writeProjectFile(t, dir, "new.py", "y")
	if err := os.Remove(filepath.Join(dir, "old.py")); err != nil {
		t.Fatal(err)
	}

	delta, err := d.Detect(context.Background(), daemon.Baseline{
		SnapshotID: base.SnapshotID,
		Manifest:   base.Manifest,
	})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if delta.Kind != daemon.Changed {
		t.Fatalf("Kind = %v, want Changed", delta.Kind)
	}

	want := []string{"added: new.py", "changed: main.py", "removed: old.py"}
	if len(delta.Files) != len(want) {
		t.Fatalf("Files = %v, want %v", delta.Files, want)
	}
	for i := range want {
		if delta.Files[i] != want[i] {
			t.Errorf("Files[%d] = %q, want %q", i, delta.Files[i], want[i])
		}
	}
}

func TestDiffManifests_Cap(t *testing.T) {
	cur := daemon.ScanManifest{
		"a.txt": {Size: 1}, "b.txt": {Size: 1}, "c.txt": {Size: 1},
	}
	files, more := diffManifests(daemon.ScanManifest{}, cur, 2)
	if len(files) != 2 {
		t.Errorf("files = %v, want 2 entries", files)
	}
	if !more {
		t.Error("cap overflow not reported")
	}
}

func TestManifestFingerprint_Deterministic(t *testing.T) {
	a := daemon.ScanManifest{"x": {Size: 1, ModTime: 2}, "y": {Size: 3, ModTime: 4}}
	b := daemon.ScanManifest{"y": {Size: 3, ModTime: 4}, "x": {Size: 1, ModTime: 2}}
	if manifestFingerprint(a) != manifestFingerprint(b) {
		t.Error("fingerprint depends on map order")
	}
	c := daemon.ScanManifest{"x": {Size: 1, ModTime: 2}, "y": {Size: 3, ModTime: 5}}
	if manifestFingerprint(a) == manifestFingerprint(c) {
		t.Error("fingerprint ignores mtime")
	}
}
