package testutil

import (
	"context"
	"sync"

	"moltd/internal/daemon"
	"moltd/internal/moltbook"
)

// FakeClient is a scripted daemon.Client. Configure the response fields
// and error queues before use; every call is counted.
type FakeClient struct {
	mu sync.Mutex

	Agent       *moltbook.Agent
	AgentStatus *moltbook.AgentStatus
	Posts       []moltbook.Post
	Comments_   []moltbook.Comment
	DM          *moltbook.DMActivity
	Dry         bool

	// CreatePostErrs is consumed one error per CreatePost call; nil
	// entries mean success. When exhausted, calls succeed.
	CreatePostErrs []error

	// CreatedPost is returned by successful CreatePost calls.
	CreatedPost *moltbook.Post

	ListPostsErr     error
	CommentsErr      error
	CreateCommentErr error

	CreatePostCalls    []moltbook.PostRequest
	ListPostsCalls     int
	CreateCommentCalls []string // reply contents, in order
}

var _ daemon.Client = (*FakeClient)(nil)

func (f *FakeClient) Me(ctx context.Context) (*moltbook.Agent, error) {
	if f.Agent == nil {
		return &moltbook.Agent{Name: "test-agent"}, nil
	}
	return f.Agent, nil
}

func (f *FakeClient) Status(ctx context.Context) (*moltbook.AgentStatus, error) {
	if f.AgentStatus == nil {
		return &moltbook.AgentStatus{Status: "active"}, nil
	}
	return f.AgentStatus, nil
}

func (f *FakeClient) Profile(ctx context.Context, name string) (*moltbook.Profile, error) {
	return &moltbook.Profile{}, nil
}

func (f *FakeClient) Feed(ctx context.Context, sort string, limit int) ([]moltbook.Post, error) {
	return f.Posts, nil
}

func (f *FakeClient) ListPosts(ctx context.Context, opts moltbook.ListOptions) ([]moltbook.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListPostsCalls++
	if f.ListPostsErr != nil {
		return nil, f.ListPostsErr
	}
	return f.Posts, nil
}

func (f *FakeClient) CreatePost(ctx context.Context, req moltbook.PostRequest) (*moltbook.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreatePostCalls = append(f.CreatePostCalls, req)
	if len(f.CreatePostErrs) > 0 {
		err := f.CreatePostErrs[0]
		f.CreatePostErrs = f.CreatePostErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.CreatedPost != nil {
		return f.CreatedPost, nil
	}
	return &moltbook.Post{ID: "post-1", Title: req.Title, Content: req.Content}, nil
}

func (f *FakeClient) Comments(ctx context.Context, postID, sort string, limit int) ([]moltbook.Comment, error) {
	if f.CommentsErr != nil {
		return nil, f.CommentsErr
	}
	return f.Comments_, nil
}

func (f *FakeClient) CreateComment(ctx context.Context, postID, content, parentID string) (*moltbook.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateCommentErr != nil {
		return nil, f.CreateCommentErr
	}
	f.CreateCommentCalls = append(f.CreateCommentCalls, content)
	return &moltbook.Comment{ID: "c-reply", PostID: postID, Content: content}, nil
}

func (f *FakeClient) DMCheck(ctx context.Context) (*moltbook.DMActivity, error) {
	if f.DM == nil {
		return &moltbook.DMActivity{}, nil
	}
	return f.DM, nil
}

func (f *FakeClient) DryRun() bool { return f.Dry }
