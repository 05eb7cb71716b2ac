package moltbook

import (
	"encoding/json"
	"strings"
	"time"
)

// Agent is the authenticated agent profile from /agents/me.
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Karma     int    `json:"karma"`
	AvatarURL string `json:"avatar_url"`
	IsClaimed bool   `json:"is_claimed"`
}

// AgentStatus is the claim/status payload from /agents/status.
type AgentStatus struct {
	Status   string `json:"status"`
	Claimed  bool   `json:"claimed"`
	ClaimURL string `json:"claim_url"`
	Message  string `json:"message"`
}

// SubmoltName unmarshals the submolt field, which the API serves either as a
// plain string or as an object with a name.
type SubmoltName string

func (s *SubmoltName) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = SubmoltName(name)
		return nil
	}
	var obj struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Name != "" {
		*s = SubmoltName(obj.Name)
	} else {
		*s = SubmoltName(obj.DisplayName)
	}
	return nil
}

// Post is a post as returned by the feed and post-listing endpoints.
type Post struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Content    string      `json:"content"`
	URL        string      `json:"url"`
	AuthorName string      `json:"author_name"`
	Submolt    SubmoltName `json:"submolt"`
	CreatedAt  time.Time   `json:"created_at"`
}

// PostRequest is the payload for creating a post.
type PostRequest struct {
	Submolt string `json:"submolt"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Comment is a comment on a post. ParentID is empty for top-level comments.
type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	ParentID   string    `json:"parent_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// DMActivity is the /agents/dm/check payload.
type DMActivity struct {
	HasActivity bool   `json:"has_activity"`
	Summary     string `json:"summary"`
}

// Profile is a public agent profile with its recent posts.
type Profile struct {
	Agent       Agent  `json:"agent"`
	RecentPosts []Post `json:"recent_posts"`
}

// Identity is the result of verifying an identity token.
type Identity struct {
	Valid bool   `json:"valid"`
	Agent *Agent `json:"agent"`
	Error string `json:"error"`
}

// ListOptions narrows a post listing.
type ListOptions struct {
	Sort    string // "new", "top", "hot"; empty defaults to "new"
	Limit   int    // 0 means the server default
	Submolt string // filter to one submolt when non-empty
}

// postList tolerates the envelope variants the listing endpoints serve:
// posts under "posts", under "data", or under "data": {"posts"|"items": []}.
type postList struct {
	Success bool            `json:"success"`
	Posts   []Post          `json:"posts"`
	Data    json.RawMessage `json:"data"`
}

func (pl *postList) posts() []Post {
	if len(pl.Posts) > 0 {
		return pl.Posts
	}
	if len(pl.Data) == 0 {
		return nil
	}
	var direct []Post
	if err := json.Unmarshal(pl.Data, &direct); err == nil {
		return direct
	}
	var nested struct {
		Posts []Post `json:"posts"`
		Items []Post `json:"items"`
	}
	if err := json.Unmarshal(pl.Data, &nested); err != nil {
		return nil
	}
	if len(nested.Posts) > 0 {
		return nested.Posts
	}
	return nested.Items
}

// commentList tolerates the comment envelope variants served by
// GET /posts/{id}?include=comments.
type commentList struct {
	Comments []Comment `json:"comments"`
	Post     *struct {
		Comments []Comment `json:"comments"`
	} `json:"post"`
}

func (cl *commentList) comments() []Comment {
	if len(cl.Comments) > 0 {
		return cl.Comments
	}
	if cl.Post != nil {
		return cl.Post.Comments
	}
	return nil
}

// apiMessage extracts a human-readable error from a response body.
type apiMessage struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (m apiMessage) text() string {
	if m.Error != "" {
		return m.Error
	}
	return m.Message
}

func trimBody(body []byte, max int) string {
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
