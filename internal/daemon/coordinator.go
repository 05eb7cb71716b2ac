package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"moltd/internal/moltbook"
)

// DefaultCooldown is Moltbook's posting cooldown: 1 post per 30 minutes.
const DefaultCooldown = 30 * time.Minute

// DefaultPostAttempts bounds total POST attempts per coordinator call.
const DefaultPostAttempts = 2

// verifyLimit is how many recent posts the verify step inspects.
const verifyLimit = 10

// findRecentLimit is the wider window used by standalone lookups.
const findRecentLimit = 25

// PostAttempt describes one posting operation.
type PostAttempt struct {
	Submolt     string
	Title       string
	Content     string
	URL         string
	Fingerprint string
}

// NewPostAttempt builds a PostAttempt with its idempotency fingerprint, a
// content hash used to recognize the post in a verify lookup after an
// ambiguous failure.
func NewPostAttempt(submolt, title, content, url string) PostAttempt {
	return PostAttempt{
		Submolt:     submolt,
		Title:       title,
		Content:     content,
		URL:         url,
		Fingerprint: ContentFingerprint(title, content),
	}
}

// ContentFingerprint hashes a title/content pair for duplicate detection.
func ContentFingerprint(title, content string) string {
	sum := sha256.Sum256([]byte(title + "\n" + content))
	return hex.EncodeToString(sum[:])
}

// OutcomeKind tags a PostOutcome.
type OutcomeKind int

const (
	// OutcomePosted means a post was confirmed on the server.
	OutcomePosted OutcomeKind = iota

	// OutcomeSkipped means no post was needed or allowed (no change,
	// dry run). No network write was made.
	OutcomeSkipped

	// OutcomeDeferred means posting is blocked by cooldown; retry after
	// RetryAfter elapses.
	OutcomeDeferred

	// OutcomeFailed means the attempt failed and should not be retried
	// this iteration.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePosted:
		return "posted"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PostOutcome is the result of one MaybePost call.
type PostOutcome struct {
	Kind       OutcomeKind
	Reason     string        // OutcomeSkipped
	RetryAfter time.Duration // OutcomeDeferred
	PostID     string        // OutcomePosted, may be empty
	Err        error         // OutcomeFailed

	// StateDirty reports that st was mutated and must be persisted.
	StateDirty bool
}

// Coordinator drives cooldown-aware, duplicate-safe post submission.
// It is the only component that mutates State, and it does so only on
// confirmed outcomes: a successful (or verified) post, or an authoritative
// server cooldown report.
type Coordinator struct {
	client   Client
	log      Logger
	clock    Clock
	cooldown time.Duration
	attempts int
}

// NewCoordinator creates a Coordinator. cooldown <= 0 selects
// DefaultCooldown; attempts <= 0 selects DefaultPostAttempts.
func NewCoordinator(client Client, log Logger, clock Clock, cooldown time.Duration, attempts int) *Coordinator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if attempts <= 0 {
		attempts = DefaultPostAttempts
	}
	return &Coordinator{
		client:   client,
		log:      log,
		clock:    clock,
		cooldown: cooldown,
		attempts: attempts,
	}
}

// MaybePost runs the posting state machine for one iteration.
//
// force bypasses the no-change gate only; cooldown is an external contract
// and is always honored. On an ambiguous transient failure the coordinator
// verifies whether the post already landed before retrying the POST, so a
// timed-out-but-accepted request never produces a duplicate.
func (c *Coordinator) MaybePost(ctx context.Context, st *State, delta ProjectDelta, attempt PostAttempt, force bool) PostOutcome {
	if delta.Kind == NoChange && !force {
		return PostOutcome{Kind: OutcomeSkipped, Reason: "no change detected"}
	}

	now := c.clock.Now()
	if remaining := st.CooldownRemaining(now, c.cooldown); remaining > 0 {
		c.log.Info("post deferred by cooldown",
			"remaining", remaining.Round(time.Second).String(),
			"submolt", attempt.Submolt)
		return PostOutcome{Kind: OutcomeDeferred, RetryAfter: remaining}
	}

	req := moltbook.PostRequest{
		Submolt: attempt.Submolt,
		Title:   attempt.Title,
		Content: attempt.Content,
		URL:     attempt.URL,
	}

	var lastErr error
	for i := 1; i <= c.attempts; i++ {
		post, err := c.client.CreatePost(ctx, req)
		if err == nil {
			c.commit(st, delta)
			postID := ""
			if post != nil {
				postID = post.ID
			}
			c.log.Info("post confirmed", "submolt", attempt.Submolt, "title", attempt.Title, "post_id", postID)
			return PostOutcome{Kind: OutcomePosted, PostID: postID, StateDirty: true}
		}

		if errors.Is(err, moltbook.ErrDryRun) {
			return PostOutcome{Kind: OutcomeSkipped, Reason: "dry run"}
		}

		if retryAfter, ok := moltbook.RetryAfter(err); ok {
			// The server's remaining-cooldown report is authoritative
			// over anything we could compute locally.
			st.RecordServerCooldown(now.Add(retryAfter))
			c.log.Warn("post rate limited", "retry_after", retryAfter.String())
			return PostOutcome{Kind: OutcomeDeferred, RetryAfter: retryAfter, StateDirty: true}
		}

		if !moltbook.IsKind(err, moltbook.KindTransient) {
			return PostOutcome{Kind: OutcomeFailed, Err: err}
		}

		lastErr = err
		c.log.Warn("post attempt failed with unknown outcome, verifying",
			"attempt", i, "of", c.attempts, "error", err)

		// The POST may have been accepted even though we saw an error.
		// Look for it before even considering a retry.
		if found := c.verify(ctx, attempt); found != nil {
			c.commit(st, delta)
			c.log.Info("post found on verify, treating as success", "post_id", found.ID)
			return PostOutcome{Kind: OutcomePosted, PostID: found.ID, StateDirty: true}
		}
	}

	return PostOutcome{Kind: OutcomeFailed, Err: fmt.Errorf("post not confirmed after %d attempt(s): %w", c.attempts, lastErr)}
}

// verify checks the newest posts in the attempt's submolt for a match by
// fingerprint or exact title. Lookup failures are logged and treated as
// "not found": the caller may retry the POST, which is the conservative
// choice only when no match could be confirmed.
func (c *Coordinator) verify(ctx context.Context, attempt PostAttempt) *moltbook.Post {
	posts, err := c.client.ListPosts(ctx, moltbook.ListOptions{
		Sort:    "new",
		Limit:   verifyLimit,
		Submolt: attempt.Submolt,
	})
	if err != nil {
		c.log.Warn("verify lookup failed", "error", err)
		return nil
	}
	for i := range posts {
		p := &posts[i]
		if ContentFingerprint(p.Title, p.Content) == attempt.Fingerprint {
			return p
		}
		if p.Title != "" && p.Title == attempt.Title {
			return p
		}
	}
	return nil
}

// FindRecentPost searches the newest posts in submolt for one matching
// the given criteria: exact title when title is non-empty, and a content
// substring when contains is non-empty. Useful after a timed-out POST to
// check whether the post landed without risking a duplicate. With no
// criteria nothing matches.
func (c *Coordinator) FindRecentPost(ctx context.Context, submolt, title, contains string) (*moltbook.Post, error) {
	if title == "" && contains == "" {
		return nil, nil
	}
	posts, err := c.client.ListPosts(ctx, moltbook.ListOptions{
		Sort:    "new",
		Limit:   findRecentLimit,
		Submolt: submolt,
	})
	if err != nil {
		return nil, fmt.Errorf("list recent posts: %w", err)
	}
	for i := range posts {
		p := &posts[i]
		if title != "" && p.Title != title {
			continue
		}
		if contains != "" && !strings.Contains(p.Content, contains) {
			continue
		}
		return p, nil
	}
	return nil, nil
}

func (c *Coordinator) commit(st *State, delta ProjectDelta) {
	st.RecordSnapshot(delta)
	st.RecordPost(c.clock.Now())
}
