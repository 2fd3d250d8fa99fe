package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linkup-social/linkup/models"
)

// Event is one message from the feed stream.
type Event struct {
	Type   string       `json:"type"`
	PostID uint         `json:"postId"`
	Post   *models.Post `json:"post,omitempty"`
}

// Feed keeps a local copy of the post list and the signed-in user.
// Every mutation goes through the server and the returned post replaces the local one.
type Feed struct {
	c *Client

	mu    sync.RWMutex
	posts []models.Post
	user  *models.User
}

// NewFeed creates an empty feed backed by c.
func NewFeed(c *Client) *Feed {
	return &Feed{c: c}
}

// Posts returns a snapshot of the feed, newest first.
func (f *Feed) Posts() []models.Post {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.Post, len(f.posts))
	copy(out, f.posts)
	return out
}

// User returns the signed-in user, or nil before Load.
func (f *Feed) User() *models.User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.user
}

// Load fetches the current user and the post list.
func (f *Feed) Load(ctx context.Context) error {
	user, err := f.c.Me(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.user = user
	f.mu.Unlock()
	return f.Refresh(ctx)
}

// Refresh replaces the local post list with the server's.
func (f *Feed) Refresh(ctx context.Context) error {
	posts, err := f.c.ListPosts(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.posts = posts
	f.mu.Unlock()
	return nil
}

// Create publishes a post and puts it at the top of the feed.
func (f *Feed) Create(ctx context.Context, content string) (*models.Post, error) {
	post, err := f.c.CreatePost(ctx, content)
	if err != nil {
		return nil, err
	}
	f.prepend(*post)
	return post, nil
}

// CreateWithImage publishes a post with an image and puts it at the top of the feed.
func (f *Feed) CreateWithImage(ctx context.Context, content, filename string, image io.Reader) (*models.Post, error) {
	post, err := f.c.CreatePostWithImage(ctx, content, filename, image)
	if err != nil {
		return nil, err
	}
	f.prepend(*post)
	return post, nil
}

// Edit changes a post's content.
func (f *Feed) Edit(ctx context.Context, id uint, content string) (*models.Post, error) {
	return f.replaceWith(f.c.UpdatePost(ctx, id, content))
}

// Like toggles the caller's like on a post.
func (f *Feed) Like(ctx context.Context, id uint) (*models.Post, error) {
	return f.replaceWith(f.c.ToggleLike(ctx, id))
}

// Comment adds a comment to a post.
func (f *Feed) Comment(ctx context.Context, id uint, text string) (*models.Post, error) {
	return f.replaceWith(f.c.Comment(ctx, id, text))
}

// Repost shares a post and puts the repost at the top of the feed.
func (f *Feed) Repost(ctx context.Context, id uint, content string) (*models.Post, error) {
	post, err := f.c.Repost(ctx, id, content)
	if err != nil {
		return nil, err
	}
	f.prepend(*post)
	return post, nil
}

// Delete removes a post. Reposts of it stay and show the original as removed.
func (f *Feed) Delete(ctx context.Context, id uint) error {
	if err := f.c.DeletePost(ctx, id); err != nil {
		return err
	}
	f.remove(id)
	return nil
}

// UpdateProfile changes the signed-in user's profile.
func (f *Feed) UpdateProfile(ctx context.Context, in ProfileUpdate) (*models.User, error) {
	user, err := f.c.UpdateProfile(ctx, in)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.user = user
	f.mu.Unlock()
	return user, nil
}

// Apply folds a stream event into the feed.
func (f *Feed) Apply(ev Event) {
	switch ev.Type {
	case "post.deleted":
		f.remove(ev.PostID)
	case "post.created", "post.updated":
		if ev.Post == nil {
			return
		}
		if !f.replace(*ev.Post) {
			f.prepend(*ev.Post)
		}
	}
}

// Poll refreshes the feed every interval until ctx is done. Failed refreshes
// are passed to onError, which may be nil.
func (f *Feed) Poll(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil && onError != nil && ctx.Err() == nil {
				onError(err)
			}
		}
	}
}

// Follow applies events from the server's feed stream until ctx is done or
// the connection drops. It returns nil when ctx ends the stream.
func (f *Feed) Follow(ctx context.Context) error {
	u, err := url.Parse(f.c.baseURL + "/api/posts/stream")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	if token := f.c.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: "feed stream rejected"}
		}
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		f.Apply(ev)
	}
}

func (f *Feed) replaceWith(post *models.Post, err error) (*models.Post, error) {
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, errors.New("empty post in response")
	}
	f.replace(*post)
	return post, nil
}

func (f *Feed) prepend(post models.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.ID == post.ID {
			return
		}
	}
	f.posts = append([]models.Post{post}, f.posts...)
}

func (f *Feed) replace(post models.Post) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.posts {
		if f.posts[i].ID == post.ID {
			f.posts[i] = post
			return true
		}
	}
	return false
}

func (f *Feed) remove(id uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.posts[:0]
	for _, p := range f.posts {
		if p.ID == id {
			continue
		}
		if p.OriginalPost != nil && p.OriginalPost.ID == id {
			p.OriginalPost = nil
			p.OriginalRemoved = true
		}
		out = append(out, p)
	}
	f.posts = out
}
