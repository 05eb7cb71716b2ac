package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"moltd/internal/app"
	"moltd/internal/config"
	"moltd/internal/daemon"
	"moltd/internal/encryption"
	"moltd/internal/moltbook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from its default (or overridden)
// location and applies environment overrides.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp loads the config, applies shared CLI flag overrides, and wires
// the app. The caller must defer a.Close().
func newApp(cmd *cobra.Command, opts app.Options) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	applyOverrides(cmd, cfg)

	a, err := app.NewApp(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// applyOverrides copies set CLI flags onto the config. Only flags the
// command actually declares are consulted.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	if f := cmd.Flags().Lookup("submolt"); f != nil && f.Changed {
		cfg.Moltbook.Submolt = f.Value.String()
	}
	if f := cmd.Flags().Lookup("project-dir"); f != nil && f.Changed {
		cfg.Project.Dir = f.Value.String()
		cfg.Project.Name = ""
		_ = cfg.Normalize()
	}
	if f := cmd.Flags().Lookup("state-file"); f != nil && f.Changed {
		cfg.State.File = f.Value.String()
	}
	if f := cmd.Flags().Lookup("interval"); f != nil && f.Changed {
		if n, err := cmd.Flags().GetInt("interval"); err == nil && n > 0 {
			cfg.Posting.IntervalS = n
		}
	}
	if f := cmd.Flags().Lookup("max-content-chars"); f != nil && f.Changed {
		if n, err := cmd.Flags().GetInt("max-content-chars"); err == nil && n > 0 {
			cfg.Posting.MaxContentChars = n
		}
	}
	if f := cmd.Flags().Lookup("max-commits"); f != nil && f.Changed {
		if n, err := cmd.Flags().GetInt("max-commits"); err == nil && n > 0 {
			cfg.Project.MaxCommits = n
		}
	}
	if f := cmd.Flags().Lookup("max-files"); f != nil && f.Changed {
		if n, err := cmd.Flags().GetInt("max-files"); err == nil && n > 0 {
			cfg.Project.MaxFiles = n
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "moltd",
	Short: "Moltbook project daemon",
	Long:  "moltd watches a project for changes and shares updates on Moltbook, respecting the platform's posting cooldown.",
}

// run command

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		once, _ := cmd.Flags().GetBool("once")
		post, _ := cmd.Flags().GetBool("post")
		forcePost, _ := cmd.Flags().GetBool("force-post")
		intro, _ := cmd.Flags().GetBool("intro")

		a, err := newApp(cmd, app.Options{
			DryRun:    dryRun,
			Once:      once,
			Post:      post,
			ForcePost: forcePost,
			Intro:     intro,
		})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := a.Service().Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// post command

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Submit a one-off post",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		contentFile, _ := cmd.Flags().GetString("content-file")
		url, _ := cmd.Flags().GetString("url")
		submolt, _ := cmd.Flags().GetString("submolt")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		verifyOnly, _ := cmd.Flags().GetBool("verify-only")
		matchContains, _ := cmd.Flags().GetString("match-contains")
		attempts, _ := cmd.Flags().GetInt("attempts")

		if verifyOnly {
			if title == "" && matchContains == "" {
				return fmt.Errorf("--verify-only needs --title or --match-contains")
			}
			a, err := newApp(cmd, app.Options{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer a.Close()

			found, err := a.VerifyPost(cmd.Context(), submolt, title, matchContains)
			if err != nil {
				return err
			}
			if found == nil {
				return fmt.Errorf("no matching post found in recent posts")
			}
			fmt.Printf("Found matching post: %s  m/%s  %s\n", found.ID, found.Submolt, found.Title)
			return nil
		}

		if title == "" {
			return fmt.Errorf("--title is required")
		}
		if contentFile != "" {
			data, err := os.ReadFile(contentFile)
			if err != nil {
				return fmt.Errorf("reading content file: %w", err)
			}
			content = string(data)
		}
		if content == "" && url == "" {
			return fmt.Errorf("--content, --content-file, or --url is required")
		}

		a, err := newApp(cmd, app.Options{DryRun: dryRun, Attempts: attempts})
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.ManualPost(cmd.Context(), submolt, title, content, url)
		if err != nil {
			return err
		}
		switch res.Kind {
		case daemon.OutcomePosted:
			fmt.Printf("Posted: %s\n", valueOr(res.PostID, "(id unknown)"))
		case daemon.OutcomeSkipped:
			fmt.Printf("Skipped: %s\n", res.Reason)
		case daemon.OutcomeDeferred:
			fmt.Printf("Deferred by cooldown: retry in %s\n", res.RetryAfter.Round(time.Second))
		case daemon.OutcomeFailed:
			return res.Err
		}
		return nil
	},
}

// posts command

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List recent posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		submolt, _ := cmd.Flags().GetString("submolt")
		contains, _ := cmd.Flags().GetString("contains")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		posts, err := a.Client().ListPosts(cmd.Context(), moltbook.ListOptions{
			Sort:    "new",
			Limit:   limit,
			Submolt: submolt,
		})
		if err != nil {
			return err
		}

		matched := make([]moltbook.Post, 0, len(posts))
		for _, p := range posts {
			if contains != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(contains)) {
				continue
			}
			matched = append(matched, p)
		}

		if asJSON {
			data, err := json.MarshalIndent(matched, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		for _, p := range matched {
			fmt.Printf("%s  m/%s  %s\n", p.CreatedAt.Format("2006-01-02 15:04"), p.Submolt, p.Title)
		}
		if len(matched) == 0 {
			fmt.Println("No posts found.")
		}
		return nil
	},
}

// reply command

var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Reply to unanswered comments on a post",
	RunE: func(cmd *cobra.Command, args []string) error {
		postID, _ := cmd.Flags().GetString("post-id")
		limit, _ := cmd.Flags().GetInt("limit")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if postID == "" {
			return fmt.Errorf("--post-id is required")
		}

		a, err := newApp(cmd, app.Options{DryRun: dryRun})
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Service().ReplyToComments(cmd.Context(), postID, limit)
		if err != nil {
			return err
		}
		for _, r := range results {
			switch r.Outcome {
			case "replied":
				fmt.Printf("replied to %s (%s, intent=%s)\n", r.CommentID, r.Author, r.Intent)
			case "dry-run":
				fmt.Printf("would reply to %s (%s, intent=%s): %s\n", r.CommentID, r.Author, r.Intent, r.Reply)
			case "failed":
				fmt.Printf("failed on %s: %v\n", r.CommentID, r.Err)
			}
		}
		return nil
	},
}

// heartbeat command

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Check agent status, DMs, and the feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		feedLimit, _ := cmd.Flags().GetInt("limit")
		sort, _ := cmd.Flags().GetString("sort")
		alsoGlobal, _ := cmd.Flags().GetBool("also-global")

		a, err := newApp(cmd, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		rep := a.Service().Heartbeat(cmd.Context(), daemon.HeartbeatOptions{
			FeedLimit:  feedLimit,
			Sort:       sort,
			AlsoGlobal: alsoGlobal,
		})
		fmt.Printf("Checked at: %s\n", rep.CheckedAt.Format(time.RFC3339))
		if rep.AgentName != "" {
			fmt.Printf("Agent: %s (karma %d)\n", rep.AgentName, rep.Karma)
		}
		if rep.AgentStatus != "" {
			fmt.Printf("Status: %s\n", rep.AgentStatus)
		}
		if rep.DMActivity != "" {
			fmt.Printf("DMs: %s\n", rep.DMActivity)
		}
		for _, title := range rep.FeedTitles {
			fmt.Printf("  feed: %s\n", title)
		}
		for _, title := range rep.GlobalTitles {
			fmt.Printf("  global: %s\n", title)
		}
		for _, w := range rep.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		return nil
	},
}

// identity command

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Identity token operations",
}

var identityTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a short-lived identity token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := moltbook.NewClient(moltbook.Config{
			APIKey:  cfg.Moltbook.APIKey,
			BaseURL: cfg.Moltbook.BaseURL,
		})
		token, err := client.CreateIdentityToken(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var identityVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify an identity token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Verification is a free endpoint; no API key needed.
		client := moltbook.NewClient(moltbook.Config{})
		id, err := client.VerifyIdentity(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !id.Valid {
			return fmt.Errorf("token is not valid")
		}
		if id.Agent != nil {
			fmt.Printf("Valid token for %s (karma %d)\n", id.Agent.Name, id.Agent.Karma)
		} else {
			fmt.Println("Valid token")
		}
		return nil
	},
}

// history command

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent iterations and posts from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		iterations, err := a.Journal().ListIterations(limit)
		if err != nil {
			return fmt.Errorf("listing iterations: %w", err)
		}
		posts, err := a.Journal().ListPosts(limit)
		if err != nil {
			return fmt.Errorf("listing posts: %w", err)
		}

		fmt.Println("Iterations:")
		if len(iterations) == 0 {
			fmt.Println("  (none)")
		}
		for _, it := range iterations {
			detail := it.Detail
			if detail != "" {
				detail = "  " + detail
			}
			fmt.Printf("  %s  %-5s  %s%s\n", it.StartedAt.Format("2006-01-02 15:04:05"), it.Mode, it.Outcome, detail)
		}

		fmt.Println("Posts:")
		if len(posts) == 0 {
			fmt.Println("  (none)")
		}
		for _, p := range posts {
			fmt.Printf("  %s  m/%s  %s\n", p.PostedAt.Format("2006-01-02 15:04:05"), p.Submolt, p.Title)
		}
		return nil
	},
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		// Read the API key without echoing it. Piped stdin falls back to
		// a plain line read.
		fmt.Fprint(os.Stderr, "Moltbook API key (blank to use MOLTBOOK_API_KEY): ")
		if term.IsTerminal(int(os.Stdin.Fd())) {
			key, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("reading API key: %w", err)
			}
			cfg.Moltbook.APIKey = strings.TrimSpace(string(key))
		} else {
			var key string
			fmt.Fscanln(os.Stdin, &key)
			cfg.Moltbook.APIKey = strings.TrimSpace(key)
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base URL:    %s\n", cfg.Moltbook.BaseURL)
		fmt.Printf("Submolt:     %s\n", cfg.Moltbook.Submolt)
		fmt.Printf("API key:     %s\n", maskKey(cfg.Moltbook.APIKey))
		fmt.Printf("Project:     %s (%s)\n", cfg.Project.Name, cfg.Project.Dir)
		fmt.Printf("State file:  %s\n", cfg.State.File)
		fmt.Printf("Journal:     %s\n", cfg.Journal.Type)
		fmt.Printf("Archive:     %s\n", cfg.Archive.Type)
		fmt.Printf("Encryption:  %s\n", cfg.Encryption.Type)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Posting:     enabled=%v interval=%ds cooldown=%dm\n",
			cfg.Posting.Enabled, cfg.Posting.IntervalS, cfg.Posting.CooldownMinutes)
		return nil
	},
}

var configKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an age key pair for archive encryption",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Encryption.Type != "age" {
			return fmt.Errorf("encryption.type is %q; set it to \"age\" before generating keys", cfg.Encryption.Type)
		}

		enc := encryption.NewAgeEncryptor(cfg.Encryption)
		if enc.IsConfigured() {
			return fmt.Errorf("age keys already exist at %s", cfg.Encryption.PrivateKeyPath)
		}

		fmt.Fprint(os.Stderr, "Key passphrase (blank stores the private key unprotected): ")
		var passphrase string
		if term.IsTerminal(int(os.Stdin.Fd())) {
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			passphrase = strings.TrimSpace(string(raw))
		} else {
			fmt.Fscanln(os.Stdin, &passphrase)
			passphrase = strings.TrimSpace(passphrase)
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	runCmd.Flags().Bool("once", false, "Run a single iteration and exit")
	runCmd.Flags().Bool("dry-run", false, "Never write anything to the API")
	runCmd.Flags().Bool("post", false, "Enable posting even if disabled in config")
	runCmd.Flags().Bool("force-post", false, "Post a status update even without changes")
	runCmd.Flags().Bool("intro", false, "Post an introduction on first run")
	runCmd.Flags().Int("interval", 0, "Seconds between iterations")
	runCmd.Flags().String("submolt", "", "Submolt to post to")
	runCmd.Flags().String("project-dir", "", "Project directory to watch")
	runCmd.Flags().String("state-file", "", "State file path")
	runCmd.Flags().Int("max-content-chars", 0, "Maximum characters per post body")
	runCmd.Flags().Int("max-commits", 0, "Maximum commits listed per update")
	runCmd.Flags().Int("max-files", 0, "Maximum files listed per update")

	postCmd.Flags().String("title", "", "Post title")
	postCmd.Flags().String("content", "", "Post body")
	postCmd.Flags().String("content-file", "", "Read the post body from a file")
	postCmd.Flags().String("url", "", "Link post URL")
	postCmd.Flags().String("submolt", "", "Submolt to post to")
	postCmd.Flags().Bool("dry-run", false, "Never write anything to the API")
	postCmd.Flags().Bool("verify-only", false, "Do not post; check recent posts for a match")
	postCmd.Flags().String("match-contains", "", "Content substring a verify match must contain")
	postCmd.Flags().Int("attempts", 0, "POST attempts for transient errors")

	postsCmd.Flags().IntP("limit", "n", 15, "Maximum number of posts to show")
	postsCmd.Flags().String("submolt", "", "Restrict to one submolt")
	postsCmd.Flags().String("contains", "", "Only titles containing this text")
	postsCmd.Flags().Bool("json", false, "Emit posts as JSON")

	replyCmd.Flags().String("post-id", "", "Post whose comments to answer")
	replyCmd.Flags().IntP("limit", "n", 20, "Maximum comments to fetch")
	replyCmd.Flags().Bool("dry-run", false, "Draft replies without sending them")

	heartbeatCmd.Flags().IntP("limit", "n", 5, "Feed sample size (0 to skip)")
	heartbeatCmd.Flags().String("sort", "new", "Feed sort order")
	heartbeatCmd.Flags().Bool("also-global", false, "Also sample global posts")

	historyCmd.Flags().IntP("limit", "n", 20, "Maximum entries per section")

	identityCmd.AddCommand(identityTokenCmd)
	identityCmd.AddCommand(identityVerifyCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeygenCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}
