// Package moltbook implements the Moltbook REST API client.
//
// Always use https://www.moltbook.com (with `www`). Redirects from the
// non-www host strip Authorization headers, which turns into silent
// authentication failure. The client rewrites the non-www base URL at
// construction time and refuses to follow redirects on authenticated calls.
//
// Moltbook enforces a post cooldown (currently 1 post per 30 minutes); 429
// responses carry a retry_after_minutes hint surfaced via APIError.
package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"moltd/internal/retry"
)

const (
	// CanonicalHost is the only host safe for authenticated requests.
	CanonicalHost = "https://www.moltbook.com"

	// CanonicalBase is the default API base URL.
	CanonicalBase = CanonicalHost + "/api/v1"

	forbiddenHost = "https://moltbook.com"

	// DefaultRetryAfter is assumed when a 429 carries no hint.
	DefaultRetryAfter = 30 * time.Minute
)

// Logger is the minimal logging surface the client needs. Args follow slog
// conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Config holds client construction parameters.
type Config struct {
	APIKey  string
	BaseURL string        // empty means CanonicalBase
	Timeout time.Duration // per-request; default 30s
	Retries int           // extra attempts for GET/HEAD on transient errors; default 2
	Backoff time.Duration // base wait between retries; default 1s
	DryRun  bool          // refuse write methods, returning ErrDryRun
	Logger  Logger
}

// ResolveBaseURL normalizes a configured base URL. The non-www Moltbook host
// is rewritten to the canonical www host so authenticated requests can never
// hit the redirect that strips Authorization headers. Non-Moltbook bases
// (test servers) pass through untouched.
func ResolveBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return CanonicalBase
	}
	if base == forbiddenHost || strings.HasPrefix(base, forbiddenHost+"/") {
		return CanonicalHost + strings.TrimPrefix(base, forbiddenHost)
	}
	return base
}

// Client talks to the Moltbook API. It is safe for concurrent use, though
// the daemon issues requests sequentially by construction.
type Client struct {
	baseURL string
	apiKey  string
	authc   *http.Client // refuses redirects
	pubc    *http.Client // follows redirects (no auth header to lose)
	retries int
	backoff time.Duration
	dryRun  bool
	log     Logger
}

// NewClient constructs a Client from cfg.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = nopLogger{}
	}

	return &Client{
		baseURL: ResolveBaseURL(cfg.BaseURL),
		apiKey:  cfg.APIKey,
		authc: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		pubc:    &http.Client{Timeout: timeout},
		retries: retries,
		backoff: backoff,
		dryRun:  cfg.DryRun,
		log:     log,
	}
}

// BaseURL returns the resolved API base the client is using.
func (c *Client) BaseURL() string { return c.baseURL }

// DryRun reports whether write requests are being suppressed.
func (c *Client) DryRun() bool { return c.dryRun }

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return false
	}
	return true
}

// do performs one API call: builds the request, applies auth and dry-run
// policy, retries idempotent methods on transient failures, classifies
// errors, and decodes the 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, authenticated bool) error {
	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	if authenticated && c.apiKey == "" {
		return &APIError{
			Kind:    KindAuth,
			Method:  method,
			URL:     reqURL,
			Message: "operation requires an API key (set MOLTBOOK_API_KEY)",
		}
	}

	if c.dryRun && isWriteMethod(method) {
		c.log.Info("dry run, skipping write request", "method", method, "url", reqURL)
		return ErrDryRun
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	attempt := func() error {
		return c.roundTrip(ctx, method, reqURL, payload, out, authenticated)
	}

	// Non-idempotent methods get exactly one attempt here. Recovering from
	// an ambiguous POST failure is the posting coordinator's job: it must
	// verify before retrying, which the transport cannot do.
	if isWriteMethod(method) {
		return attempt()
	}

	cfg := retry.Config{
		MaxAttempts: 1 + c.retries,
		InitialWait: c.backoff,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
	}
	err := retry.Do(ctx, cfg, func() error {
		err := attempt()
		if IsKind(err, KindTransient) {
			c.log.Warn("transient request failure, may retry", "method", method, "url", reqURL, "error", err)
			return retry.Retryable(err)
		}
		return err
	})
	var retryable retry.RetryableError
	if errors.As(err, &retryable) {
		return retryable.Err
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, reqURL string, payload []byte, out any, authenticated bool) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return &APIError{Kind: KindClient, Method: method, URL: reqURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpc := c.pubc
	if authenticated {
		httpc = c.authc
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransient, Method: method, URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: KindTransient, Method: method, URL: reqURL, StatusCode: resp.StatusCode, Err: err}
	}

	// An authenticated call must never be redirected: following it would
	// resend the request without the Authorization header.
	if authenticated && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return &APIError{
			Kind:       KindClient,
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        reqURL,
			Message:    fmt.Sprintf("redirected to %q; refusing to follow (redirects strip Authorization headers, use %s)", resp.Header.Get("Location"), CanonicalHost),
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &APIError{
			Kind:       KindRateLimited,
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        reqURL,
			Message:    "rate limited",
			RetryAfter: parseRetryAfter(data, resp.Header),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &APIError{
			Kind:       KindAuth,
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        reqURL,
			Message:    errorMessage(data),
		}
	case resp.StatusCode >= 500:
		return &APIError{
			Kind:       KindTransient,
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        reqURL,
			Message:    errorMessage(data),
		}
	case resp.StatusCode >= 400:
		return &APIError{
			Kind:       KindClient,
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        reqURL,
			Message:    errorMessage(data),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{
			Kind:       KindMalformed,
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        reqURL,
			Message:    fmt.Sprintf("unparseable response body: %s", trimBody(data, 200)),
			Err:        err,
		}
	}
	return nil
}

func parseRetryAfter(body []byte, header http.Header) time.Duration {
	var hint struct {
		RetryAfterMinutes float64 `json:"retry_after_minutes"`
	}
	if err := json.Unmarshal(body, &hint); err == nil && hint.RetryAfterMinutes > 0 {
		return time.Duration(hint.RetryAfterMinutes * float64(time.Minute))
	}
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultRetryAfter
}

func errorMessage(body []byte) string {
	var msg apiMessage
	if err := json.Unmarshal(body, &msg); err == nil && msg.text() != "" {
		return msg.text()
	}
	return trimBody(body, 200)
}

// Me returns the authenticated agent's profile.
func (c *Client) Me(ctx context.Context) (*Agent, error) {
	var envelope struct {
		Agent *Agent `json:"agent"`
	}
	var direct Agent
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/agents/me", nil, nil, &raw, true); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Agent != nil {
		return envelope.Agent, nil
	}
	if err := json.Unmarshal(raw, &direct); err != nil || direct.Name == "" {
		return nil, &APIError{
			Kind:    KindMalformed,
			Method:  http.MethodGet,
			URL:     c.baseURL + "/agents/me",
			Message: "response has no agent profile",
		}
	}
	return &direct, nil
}

// TestConnection verifies that the API key works against /agents/me.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.Me(ctx)
	return err
}

// Status returns the agent's claim status.
func (c *Client) Status(ctx context.Context) (*AgentStatus, error) {
	var status AgentStatus
	if err := c.do(ctx, http.MethodGet, "/agents/status", nil, nil, &status, true); err != nil {
		return nil, err
	}
	return &status, nil
}

// Profile returns a public agent profile with recent posts. No auth needed.
func (c *Client) Profile(ctx context.Context, name string) (*Profile, error) {
	q := url.Values{"name": {name}}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/agents/profile", q, nil, &raw, false); err != nil {
		return nil, err
	}
	return parseProfile(raw)
}

// parseProfile tolerates both recent_posts and recentPosts keys.
func parseProfile(raw json.RawMessage) (*Profile, error) {
	var p struct {
		Agent            Agent  `json:"agent"`
		RecentPostsSnake []Post `json:"recent_posts"`
		RecentPostsCamel []Post `json:"recentPosts"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	posts := p.RecentPostsSnake
	if len(posts) == 0 {
		posts = p.RecentPostsCamel
	}
	return &Profile{Agent: p.Agent, RecentPosts: posts}, nil
}

// Feed returns the agent's personalized feed.
func (c *Client) Feed(ctx context.Context, sort string, limit int) ([]Post, error) {
	q := listQuery(sort, limit)
	var pl postList
	if err := c.do(ctx, http.MethodGet, "/feed", q, nil, &pl, true); err != nil {
		return nil, err
	}
	return pl.posts(), nil
}

// ListPosts lists posts globally or for one submolt. No auth needed.
func (c *Client) ListPosts(ctx context.Context, opts ListOptions) ([]Post, error) {
	q := listQuery(opts.Sort, opts.Limit)
	if opts.Submolt != "" {
		q.Set("submolt", opts.Submolt)
	}
	var pl postList
	if err := c.do(ctx, http.MethodGet, "/posts", q, nil, &pl, false); err != nil {
		return nil, err
	}
	return pl.posts(), nil
}

func listQuery(sort string, limit int) url.Values {
	if sort == "" {
		sort = "new"
	}
	if limit <= 0 {
		limit = 15
	}
	return url.Values{
		"sort":  {sort},
		"limit": {strconv.Itoa(limit)},
	}
}

// GetPost fetches a single post by id. No auth needed.
func (c *Client) GetPost(ctx context.Context, postID string) (*Post, error) {
	var envelope struct {
		Post *Post `json:"post"`
	}
	if err := c.do(ctx, http.MethodGet, "/posts/"+url.PathEscape(postID), nil, nil, &envelope, false); err != nil {
		return nil, err
	}
	if envelope.Post == nil {
		return nil, &APIError{
			Kind:    KindMalformed,
			Method:  http.MethodGet,
			URL:     c.baseURL + "/posts/" + postID,
			Message: "response has no post",
		}
	}
	return envelope.Post, nil
}

// CreatePost creates a post. Posting is cooldown-limited; a 429 here carries
// the server's retry hint.
func (c *Client) CreatePost(ctx context.Context, req PostRequest) (*Post, error) {
	var envelope struct {
		Post *Post `json:"post"`
	}
	if err := c.do(ctx, http.MethodPost, "/posts", nil, req, &envelope, true); err != nil {
		return nil, err
	}
	if envelope.Post == nil {
		// Some deployments return just {"success": true}. The verify step
		// can still find the post, so report success with an empty id.
		return &Post{Submolt: SubmoltName(req.Submolt), Title: req.Title, Content: req.Content}, nil
	}
	return envelope.Post, nil
}

// Comments lists comments for a post. The documented
// GET /posts/{id}/comments endpoint returns 405 on current deployments;
// GET /posts/{id}?include=comments works.
func (c *Client) Comments(ctx context.Context, postID, sort string, limit int) ([]Comment, error) {
	q := listQuery(sort, limit)
	q.Set("include", "comments")
	var cl commentList
	if err := c.do(ctx, http.MethodGet, "/posts/"+url.PathEscape(postID), q, nil, &cl, false); err != nil {
		return nil, err
	}
	return cl.comments(), nil
}

// CreateComment comments on a post, or replies when parentID is non-empty.
func (c *Client) CreateComment(ctx context.Context, postID, content, parentID string) (*Comment, error) {
	payload := map[string]string{"content": content}
	if parentID != "" {
		payload["parent_id"] = parentID
	}
	var envelope struct {
		Comment *Comment `json:"comment"`
	}
	if err := c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", nil, payload, &envelope, true); err != nil {
		return nil, err
	}
	if envelope.Comment == nil {
		return &Comment{PostID: postID, ParentID: parentID, Content: content}, nil
	}
	return envelope.Comment, nil
}

// DMCheck polls for DM activity. Used by the heartbeat.
func (c *Client) DMCheck(ctx context.Context) (*DMActivity, error) {
	var dm DMActivity
	if err := c.do(ctx, http.MethodGet, "/agents/dm/check", nil, nil, &dm, true); err != nil {
		return nil, err
	}
	return &dm, nil
}

// CreateIdentityToken generates a short-lived identity token for
// "Sign in with Moltbook" flows.
func (c *Client) CreateIdentityToken(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/agents/me/identity-token", nil, nil, &resp, true); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &APIError{
			Kind:    KindMalformed,
			Method:  http.MethodPost,
			URL:     c.baseURL + "/agents/me/identity-token",
			Message: "response has no token",
		}
	}
	return resp.Token, nil
}

// VerifyIdentity verifies an identity token. Free, no API key required.
func (c *Client) VerifyIdentity(ctx context.Context, token string) (*Identity, error) {
	payload := map[string]string{"token": token}
	var id Identity
	if err := c.do(ctx, http.MethodPost, "/agents/verify-identity", nil, payload, &id, false); err != nil {
		return nil, err
	}
	return &id, nil
}
