package daemon

import (
	"context"
	"io"
	"time"

	"moltd/internal/moltbook"
)

// Client is the slice of the Moltbook API the daemon core depends on.
// *moltbook.Client satisfies it; tests use a scripted fake.
type Client interface {
	Me(ctx context.Context) (*moltbook.Agent, error)
	Status(ctx context.Context) (*moltbook.AgentStatus, error)
	Profile(ctx context.Context, name string) (*moltbook.Profile, error)
	Feed(ctx context.Context, sort string, limit int) ([]moltbook.Post, error)
	ListPosts(ctx context.Context, opts moltbook.ListOptions) ([]moltbook.Post, error)
	CreatePost(ctx context.Context, req moltbook.PostRequest) (*moltbook.Post, error)
	Comments(ctx context.Context, postID, sort string, limit int) ([]moltbook.Comment, error)
	CreateComment(ctx context.Context, postID, content, parentID string) (*moltbook.Comment, error)
	DMCheck(ctx context.Context) (*moltbook.DMActivity, error)
	DryRun() bool
}

// StateStore persists the daemon's cross-run state.
type StateStore interface {
	// Load returns the persisted state, or a fresh empty state when the
	// file is missing or unparseable. Corrupt state resets progress
	// tracking; it never crashes the daemon.
	Load() (State, error)

	// Save writes the state atomically (temp file + rename).
	Save(State) error

	// Path returns the backing file path, for logs.
	Path() string
}

// Detector computes the delta between the recorded baseline and the
// project's current state.
type Detector interface {
	Detect(ctx context.Context, prev Baseline) (ProjectDelta, error)
}

// IterationRecord is one daemon iteration as recorded in the journal.
type IterationRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Mode       string
	Outcome    string
	Detail     string
}

// PostRecord is one confirmed post as recorded in the journal.
type PostRecord struct {
	ID          int64
	PostID      string
	Submolt     string
	Title       string
	Fingerprint string
	PostedAt    time.Time
}

// Journal records iterations and confirmed posts for `moltd history`.
type Journal interface {
	RecordIteration(rec IterationRecord) (int64, error)
	RecordPost(rec PostRecord) error
	ListIterations(limit int) ([]IterationRecord, error)
	ListPosts(limit int) ([]PostRecord, error)
	Close() error
}

// Archive mirrors state snapshots off-host after successful commits.
type Archive interface {
	// Put stores a named snapshot. size is the number of bytes read from r.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Validate verifies the archive backend is reachable and writable.
	Validate(ctx context.Context) error
}

// Encryptor transforms archive payloads. The "none" implementation is a
// passthrough.
type Encryptor interface {
	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
