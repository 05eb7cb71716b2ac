// Package app wires the daemon's components together from configuration.
package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"moltd/internal/archive"
	"moltd/internal/config"
	"moltd/internal/daemon"
	"moltd/internal/detect"
	"moltd/internal/encryption"
	"moltd/internal/journal"
	"moltd/internal/moltbook"
	"moltd/internal/state"
)

// Options are per-invocation flags layered over the config file.
type Options struct {
	DryRun    bool
	Once      bool
	Post      bool // enable posting even if the config leaves it off
	ForcePost bool
	Intro     bool
	Attempts  int // POST attempts per coordinator call, 0 for the default
}

// App is the application layer between the CLI and the daemon service.
// It constructs all dependencies from config and manages their lifecycle
// on Close.
type App struct {
	cfg     *config.Config
	client  *moltbook.Client
	store   daemon.StateStore
	journal daemon.Journal
	archive daemon.Archive
	coord   *daemon.Coordinator
	service *daemon.Service
	log     daemon.Logger
	logFile *os.File
	runID   string
}

// NewApp creates a fully wired App from the given config. The caller must
// call Close when done.
func NewApp(cfg *config.Config, opts Options) (*App, error) {
	if cfg.Moltbook.APIKey == "" {
		return nil, fmt.Errorf("no API key configured (set MOLTBOOK_API_KEY or moltbook.api_key)")
	}

	runID := daemon.UUIDGenerator{}.New()
	logger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	client := moltbook.NewClient(moltbook.Config{
		APIKey:  cfg.Moltbook.APIKey,
		BaseURL: cfg.Moltbook.BaseURL,
		Timeout: time.Duration(cfg.Moltbook.TimeoutS) * time.Second,
		Retries: cfg.Moltbook.Retries,
		DryRun:  opts.DryRun,
		Logger:  log,
	})

	store := state.NewStore(cfg.State.File, log)

	detector := detect.NewDetector(detect.Options{
		ProjectDir:   cfg.Project.Dir,
		MaxCommits:   cfg.Project.MaxCommits,
		MaxFiles:     cfg.Project.MaxFiles,
		ExtraIgnores: cfg.Project.Ignore,
		Logger:       log,
	})

	// A dry run must leave no trace on disk, so the configured journal is
	// swapped for an in-memory one.
	var jnl daemon.Journal
	if opts.DryRun {
		jnl = journal.NewMemoryJournal()
	} else {
		jnl, err = journal.NewJournalFromConfig(cfg.Journal)
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("creating journal: %w", err)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		jnl.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	arc, err := archive.NewArchiveFromConfig(context.Background(), cfg.Archive, enc)
	if err != nil {
		jnl.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	clock := daemon.RealClock{}
	coord := daemon.NewCoordinator(client, log, clock,
		time.Duration(cfg.Posting.CooldownMinutes)*time.Minute, opts.Attempts)

	svc := daemon.NewService(daemon.ServiceConfig{
		Submolt:         cfg.Moltbook.Submolt,
		ProjectName:     cfg.Project.Name,
		Interval:        time.Duration(cfg.Posting.IntervalS) * time.Second,
		PostEnabled:     cfg.Posting.Enabled || opts.Post,
		ForcePost:       opts.ForcePost,
		Intro:           cfg.Posting.Intro || opts.Intro,
		Once:            opts.Once,
		MaxContentChars: cfg.Posting.MaxContentChars,
		MaxCommits:      cfg.Project.MaxCommits,
		MaxFiles:        cfg.Project.MaxFiles,
		ReadmePreview:   readmePreview(cfg.Project.Dir),
	}, client, store, detector, coord, jnl, arc, clock, log)

	return &App{
		cfg:     cfg,
		client:  client,
		store:   store,
		journal: jnl,
		archive: arc,
		coord:   coord,
		service: svc,
		log:     log,
		logFile: logFile,
		runID:   runID,
	}, nil
}

// Service returns the wired daemon service.
func (a *App) Service() *daemon.Service { return a.service }

// Client returns the Moltbook API client.
func (a *App) Client() *moltbook.Client { return a.client }

// Journal returns the operation journal.
func (a *App) Journal() daemon.Journal { return a.journal }

// Store returns the state store.
func (a *App) Store() daemon.StateStore { return a.store }

// Log returns the structured logger.
func (a *App) Log() daemon.Logger { return a.log }

// ManualPost submits a one-off post through the coordinator, so cooldown
// and duplicate-safety hold for hand-written posts too. submolt may be
// empty to use the configured default.
func (a *App) ManualPost(ctx context.Context, submolt, title, content, url string) (daemon.PostOutcome, error) {
	if submolt == "" {
		submolt = a.cfg.Moltbook.Submolt
	}
	st, err := a.store.Load()
	if err != nil {
		return daemon.PostOutcome{}, fmt.Errorf("load state: %w", err)
	}

	attempt := daemon.NewPostAttempt(submolt, title, content, url)
	res := a.coord.MaybePost(ctx, &st, daemon.ProjectDelta{Kind: daemon.NoChange}, attempt, true)
	if res.StateDirty && !a.client.DryRun() {
		if err := a.store.Save(st); err != nil {
			return res, fmt.Errorf("save state: %w", err)
		}
	}
	if res.Kind == daemon.OutcomePosted && a.journal != nil {
		err := a.journal.RecordPost(daemon.PostRecord{
			PostID:      res.PostID,
			Submolt:     attempt.Submolt,
			Title:       attempt.Title,
			Fingerprint: attempt.Fingerprint,
			PostedAt:    time.Now().UTC(),
		})
		if err != nil {
			a.log.Warn("journal post record failed", "error", err)
		}
	}
	return res, nil
}

// VerifyPost looks for a recent post matching title and/or a content
// substring without posting anything. submolt may be empty to use the
// configured default.
func (a *App) VerifyPost(ctx context.Context, submolt, title, contains string) (*moltbook.Post, error) {
	if submolt == "" {
		submolt = a.cfg.Moltbook.Submolt
	}
	return a.coord.FindRecentPost(ctx, submolt, title, contains)
}

// Close releases all resources.
func (a *App) Close() error {
	var firstErr error
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			firstErr = fmt.Errorf("closing journal: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// readmePreview returns the first few non-empty lines of the project's
// README for use in intro and status posts. Missing README is fine.
func readmePreview(projectDir string) string {
	if projectDir == "" {
		return ""
	}
	var f *os.File
	var err error
	for _, name := range []string{"README.md", "README.MD", "readme.md", "README"} {
		f, err = os.Open(filepath.Join(projectDir, name))
		if err == nil {
			break
		}
	}
	if err != nil || f == nil {
		return ""
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(lines) < 5 {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	preview := strings.Join(lines, "\n")
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return preview
}
