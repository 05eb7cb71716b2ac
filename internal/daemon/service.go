package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"moltd/internal/moltbook"
)

// DefaultInterval is the pause between iterations in daemon mode.
const DefaultInterval = 30 * time.Minute

// ServiceConfig selects the per-run behavior of the service loop.
type ServiceConfig struct {
	Submolt         string
	ProjectName     string
	Interval        time.Duration
	PostEnabled     bool
	ForcePost       bool
	Intro           bool
	Once            bool
	MaxContentChars int
	MaxCommits      int
	MaxFiles        int
	ReadmePreview   string
}

// Service runs the detect-render-post pipeline. Dependencies are injected;
// the journal and archive are optional (nil skips them).
type Service struct {
	cfg      ServiceConfig
	client   Client
	store    StateStore
	detector Detector
	coord    *Coordinator
	journal  Journal
	archive  Archive
	clock    Clock
	log      Logger
}

// NewService assembles a Service. coord, clock and log must be non-nil.
func NewService(cfg ServiceConfig, client Client, store StateStore, detector Detector, coord *Coordinator, journal Journal, archive Archive, clock Clock, log Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Service{
		cfg:      cfg,
		client:   client,
		store:    store,
		detector: detector,
		coord:    coord,
		journal:  journal,
		archive:  archive,
		clock:    clock,
		log:      log,
	}
}

// Run executes iterations until ctx is cancelled, or once when configured.
// Iteration errors are logged and do not stop the loop; only a cancelled
// context ends it.
func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.RunIteration(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("iteration failed", "error", err)
		}
		if s.cfg.Once {
			return nil
		}
		s.log.Info("sleeping until next iteration", "interval", s.cfg.Interval.String())
		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunIteration performs one full pass: load state, detect, render, maybe
// post, persist, journal. When nothing changed and nothing is forced, the
// pass makes no network request and writes no state.
func (s *Service) RunIteration(ctx context.Context) error {
	started := s.clock.Now()

	st, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	delta, err := s.detector.Detect(ctx, Baseline{
		SnapshotID: st.LastSnapshotID,
		Manifest:   st.ScanManifest,
	})
	if err != nil {
		// A detection failure must not masquerade as "no change"; skip
		// this iteration and leave the baseline untouched.
		s.log.Error("change detection failed, skipping iteration", "error", err)
		s.journalIteration(started, "", "error", err.Error())
		return nil
	}

	s.log.Info("detection complete",
		"mode", string(delta.Mode),
		"result", delta.Kind.String(),
		"snapshot", shortID(delta.SnapshotID))

	dirty := false
	outcome := "idle"
	detail := ""

	switch delta.Kind {
	case NoBaseline:
		st.RecordSnapshot(delta)
		dirty = true
		outcome = "baseline"
		s.log.Info("baseline established", "snapshot", shortID(delta.SnapshotID))
		if s.cfg.Intro && !st.IntroPosted && s.cfg.PostEnabled {
			res := s.post(ctx, &st, delta, RenderIntro(s.style()), true)
			outcome, detail = res.Kind.String(), outcomeDetail(res)
			if res.Kind == OutcomePosted {
				st.IntroPosted = true
			}
		}

	case Changed:
		content := RenderUpdate(delta, s.style(), s.clock.Now())
		if !s.cfg.PostEnabled {
			s.log.Info("posting disabled, draft only", "title", content.Title)
			outcome, detail = "draft", content.Title
			break
		}
		res := s.post(ctx, &st, delta, content, s.cfg.ForcePost)
		dirty = dirty || res.StateDirty
		outcome, detail = res.Kind.String(), outcomeDetail(res)

	case NoChange:
		if s.cfg.ForcePost && s.cfg.PostEnabled {
			res := s.post(ctx, &st, delta, RenderStatus(delta, s.style(), s.clock.Now()), true)
			dirty = dirty || res.StateDirty
			outcome, detail = res.Kind.String(), outcomeDetail(res)
		} else {
			s.log.Info("no change since last snapshot")
			outcome = "no-change"
		}
	}

	if dirty && !s.client.DryRun() {
		now := s.clock.Now().UTC()
		st.LastRunAt = &now
		if err := s.store.Save(st); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		s.archiveState(ctx, st)
	}

	s.journalIteration(started, string(delta.Mode), outcome, detail)
	return nil
}

func (s *Service) post(ctx context.Context, st *State, delta ProjectDelta, content PostContent, force bool) PostOutcome {
	attempt := NewPostAttempt(s.cfg.Submolt, content.Title, content.Body, "")
	res := s.coord.MaybePost(ctx, st, delta, attempt, force)
	if res.Kind == OutcomePosted && s.journal != nil {
		err := s.journal.RecordPost(PostRecord{
			PostID:      res.PostID,
			Submolt:     attempt.Submolt,
			Title:       attempt.Title,
			Fingerprint: attempt.Fingerprint,
			PostedAt:    s.clock.Now().UTC(),
		})
		if err != nil {
			s.log.Warn("journal post record failed", "error", err)
		}
	}
	if res.Kind == OutcomeFailed {
		s.log.Error("post failed", "error", res.Err)
	}
	return res
}

func (s *Service) style() RenderStyle {
	return RenderStyle{
		ProjectName:     s.cfg.ProjectName,
		MaxContentChars: s.cfg.MaxContentChars,
		ReadmePreview:   s.cfg.ReadmePreview,
	}
}

func (s *Service) journalIteration(started time.Time, mode, outcome, detail string) {
	if s.journal == nil {
		return
	}
	_, err := s.journal.RecordIteration(IterationRecord{
		StartedAt:  started.UTC(),
		FinishedAt: s.clock.Now().UTC(),
		Mode:       mode,
		Outcome:    outcome,
		Detail:     detail,
	})
	if err != nil {
		s.log.Warn("journal iteration record failed", "error", err)
	}
}

// archiveState mirrors the freshly saved state off-host. Failures are
// logged only; the local state file remains the source of truth.
func (s *Service) archiveState(ctx context.Context, st State) {
	if s.archive == nil {
		return
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		s.log.Warn("archive marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("state-%s.json", s.clock.Now().UTC().Format("20060102T150405Z"))
	if err := s.archive.Put(ctx, name, bytes.NewReader(data), int64(len(data))); err != nil {
		s.log.Warn("archive upload failed", "error", err)
	}
}

func outcomeDetail(res PostOutcome) string {
	switch res.Kind {
	case OutcomePosted:
		return res.PostID
	case OutcomeSkipped:
		return res.Reason
	case OutcomeDeferred:
		return "retry in " + res.RetryAfter.Round(time.Second).String()
	case OutcomeFailed:
		if res.Err != nil {
			return res.Err.Error()
		}
	}
	return ""
}

// HeartbeatOptions tunes the read-only heartbeat pass.
type HeartbeatOptions struct {
	FeedLimit  int    // feed sample size, 0 skips the feed probes
	Sort       string // feed sort, empty means "new"
	AlsoGlobal bool   // additionally sample global posts
}

// HeartbeatReport summarizes one heartbeat pass for display.
type HeartbeatReport struct {
	AgentName    string
	AgentStatus  string
	Karma        int
	DMActivity   string
	FeedTitles   []string
	GlobalTitles []string
	Warnings     []string
	CheckedAt    time.Time
}

// Heartbeat performs the read-only liveness pass: agent identity and
// status, DM check, and a small feed sample. Per-probe failures become
// warnings, not errors.
func (s *Service) Heartbeat(ctx context.Context, opts HeartbeatOptions) HeartbeatReport {
	if opts.Sort == "" {
		opts.Sort = "new"
	}
	rep := HeartbeatReport{CheckedAt: s.clock.Now().UTC()}

	if agent, err := s.client.Me(ctx); err != nil {
		rep.Warnings = append(rep.Warnings, "identity check failed: "+err.Error())
	} else {
		rep.AgentName = agent.Name
		rep.Karma = agent.Karma
	}

	if status, err := s.client.Status(ctx); err != nil {
		rep.Warnings = append(rep.Warnings, "status check failed: "+err.Error())
	} else {
		rep.AgentStatus = status.Status
	}

	if dm, err := s.client.DMCheck(ctx); err != nil {
		rep.Warnings = append(rep.Warnings, "dm check failed: "+err.Error())
	} else if dm != nil && dm.HasActivity {
		rep.DMActivity = dm.Summary
		if rep.DMActivity == "" {
			rep.DMActivity = "unread activity"
		}
	}

	if opts.FeedLimit > 0 {
		if posts, err := s.client.Feed(ctx, opts.Sort, opts.FeedLimit); err != nil {
			rep.Warnings = append(rep.Warnings, "feed probe failed: "+err.Error())
		} else {
			for _, p := range posts {
				rep.FeedTitles = append(rep.FeedTitles, p.Title)
			}
		}
	}

	if opts.AlsoGlobal && opts.FeedLimit > 0 {
		posts, err := s.client.ListPosts(ctx, moltbook.ListOptions{Sort: opts.Sort, Limit: opts.FeedLimit})
		if err != nil {
			rep.Warnings = append(rep.Warnings, "global feed probe failed: "+err.Error())
		} else {
			for _, p := range posts {
				rep.GlobalTitles = append(rep.GlobalTitles, p.Title)
			}
		}
	}

	for _, w := range rep.Warnings {
		s.log.Warn("heartbeat warning", "detail", w)
	}
	return rep
}

// ReplyResult describes one comment handled by ReplyToComments.
type ReplyResult struct {
	CommentID string
	Author    string
	Intent    string
	Reply     string
	Outcome   string // "replied", "skipped", "failed", "dry-run"
	Err       error
}

// ReplyToComments fetches comments on a post and answers the ones not yet
// replied to. Each confirmed reply is recorded in state immediately so a
// later crash cannot double-reply.
func (s *Service) ReplyToComments(ctx context.Context, postID string, limit int) ([]ReplyResult, error) {
	st, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	dirty := false
	if st.AgentName == "" {
		// The self-comment guard needs our own name. Without it a reply
		// pass would answer its own comments, then its own replies.
		agent, err := s.client.Me(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve agent name: %w", err)
		}
		st.AgentName = agent.Name
		dirty = true
	}

	comments, err := s.client.Comments(ctx, postID, "new", limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	var results []ReplyResult
	for _, c := range comments {
		res := ReplyResult{CommentID: c.ID, Author: c.AuthorName}
		if c.AuthorName != "" && c.AuthorName == st.AgentName {
			res.Outcome = "skipped"
			results = append(results, res)
			continue
		}
		if st.Replied(c.ID) {
			res.Outcome = "skipped"
			results = append(results, res)
			continue
		}

		rctx := CommentContext{
			PostID:      postID,
			CommentID:   c.ID,
			AuthorName:  c.AuthorName,
			CommentText: c.Content,
		}
		res.Intent = ClassifyIntent(c.Content)
		res.Reply = GenerateReply(rctx, s.cfg.ProjectName)

		hash := ReplyHash(res.Reply)
		if hasReplyHash(st.RepliedComments, hash) {
			res.Outcome = "skipped"
			results = append(results, res)
			continue
		}

		_, err := s.client.CreateComment(ctx, postID, res.Reply, c.ID)
		switch {
		case err == nil:
			st.MarkReplied(c.ID, hash)
			dirty = true
			res.Outcome = "replied"
			s.log.Info("replied to comment", "comment", c.ID, "intent", res.Intent)
		case errors.Is(err, moltbook.ErrDryRun):
			res.Outcome = "dry-run"
		default:
			res.Outcome = "failed"
			res.Err = err
			s.log.Warn("reply failed", "comment", c.ID, "error", err)
		}
		results = append(results, res)
	}

	if dirty && !s.client.DryRun() {
		if err := s.store.Save(st); err != nil {
			return results, fmt.Errorf("save state: %w", err)
		}
	}
	return results, nil
}

func hasReplyHash(replied map[string]string, hash string) bool {
	for _, h := range replied {
		if h == hash {
			return true
		}
	}
	return false
}
