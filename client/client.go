// Package client is a Go client for the linkup REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/linkup-social/linkup/models"
)

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%d): %s", e.Status, e.Code, e.Message)
}

// Client calls the API on behalf of one user.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken starts the client with an existing bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the server at baseURL, e.g. http://localhost:5000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// envelope decodes every response shape the API returns.
type envelope struct {
	Success     bool                 `json:"success"`
	Message     string               `json:"message"`
	Code        int                  `json:"code"`
	Token       string               `json:"token"`
	User        *models.User         `json:"user"`
	Post        *models.Post         `json:"post"`
	Posts       []models.Post        `json:"posts"`
	Users       []models.UserSummary `json:"users"`
	Suggestions []models.UserSummary `json:"suggestions"`
	News        []NewsItem           `json:"news"`
	Liked       bool                 `json:"liked"`
}

// NewsItem is one sidebar headline.
type NewsItem struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	TimeAgo string `json:"timeAgo"`
	Readers int    `json:"readers"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*envelope, error) {
	var reader io.Reader
	var contentType string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, contentType, reader)
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		return nil, &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	return &env, nil
}

// Register creates an account and keeps its token.
func (c *Client) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"name": name, "email": email, "password": password,
	})
	if err != nil {
		return nil, err
	}
	c.setToken(env.Token)
	return env.User, nil
}

// Login signs in and keeps the token.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	})
	if err != nil {
		return nil, err
	}
	c.setToken(env.Token)
	return env.User, nil
}

// Logout revokes the current token and forgets it.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil); err != nil {
		return err
	}
	c.setToken("")
	return nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	return env.User, nil
}

// ListPosts returns the feed, newest first.
func (c *Client) ListPosts(ctx context.Context) ([]models.Post, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/posts", nil)
	if err != nil {
		return nil, err
	}
	return env.Posts, nil
}

// GetPost returns one post.
func (c *Client) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return c.post(ctx, http.MethodGet, fmt.Sprintf("/api/posts/%d", id), nil)
}

// CreatePost publishes a text post.
func (c *Client) CreatePost(ctx context.Context, content string) (*models.Post, error) {
	return c.post(ctx, http.MethodPost, "/api/posts", map[string]string{"content": content})
}

// CreatePostWithImage publishes a post with an image attached. filename only
// labels the upload; the server decides the type from the content.
func (c *Client) CreatePostWithImage(ctx context.Context, content, filename string, image io.Reader) (*models.Post, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("content", content); err != nil {
		return nil, err
	}
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, image); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	env, err := c.send(ctx, http.MethodPost, "/api/posts", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	return env.Post, nil
}

// UpdatePost edits a post's content.
func (c *Client) UpdatePost(ctx context.Context, id uint, content string) (*models.Post, error) {
	return c.post(ctx, http.MethodPut, fmt.Sprintf("/api/posts/%d", id), map[string]string{"content": content})
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, id uint) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/posts/%d", id), nil)
	return err
}

// ToggleLike flips the like and returns the updated post.
func (c *Client) ToggleLike(ctx context.Context, id uint) (*models.Post, error) {
	return c.post(ctx, http.MethodPost, fmt.Sprintf("/api/posts/%d/like", id), nil)
}

// Comment adds a comment and returns the updated post.
func (c *Client) Comment(ctx context.Context, id uint, text string) (*models.Post, error) {
	return c.post(ctx, http.MethodPost, fmt.Sprintf("/api/posts/%d/comment", id), map[string]string{"text": text})
}

// Repost shares a post and returns the new repost.
func (c *Client) Repost(ctx context.Context, id uint, content string) (*models.Post, error) {
	return c.post(ctx, http.MethodPost, fmt.Sprintf("/api/posts/%d/repost", id), map[string]string{"content": content})
}

func (c *Client) post(ctx context.Context, method, path string, body interface{}) (*models.Post, error) {
	env, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return env.Post, nil
}

// Profile returns the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/users/profile", nil)
	if err != nil {
		return nil, err
	}
	return env.User, nil
}

// ProfileUpdate holds the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Name       *string              `json:"name,omitempty"`
	Bio        *string              `json:"bio,omitempty"`
	Headline   *string              `json:"headline,omitempty"`
	Location   *string              `json:"location,omitempty"`
	Experience *[]models.Experience `json:"experience,omitempty"`
	Education  *[]models.Education  `json:"education,omitempty"`
	Skills     *[]models.Skill      `json:"skills,omitempty"`
}

// UpdateProfile applies a partial profile update.
func (c *Client) UpdateProfile(ctx context.Context, in ProfileUpdate) (*models.User, error) {
	env, err := c.do(ctx, http.MethodPut, "/api/users/profile", in)
	if err != nil {
		return nil, err
	}
	return env.User, nil
}

// GetUser returns another user's profile.
func (c *Client) GetUser(ctx context.Context, id uint) (*models.User, error) {
	env, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d", id), nil)
	if err != nil {
		return nil, err
	}
	return env.User, nil
}

// SearchUsers finds users by name.
func (c *Client) SearchUsers(ctx context.Context, q string) ([]models.UserSummary, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/users/search?q="+url.QueryEscape(q), nil)
	if err != nil {
		return nil, err
	}
	return env.Users, nil
}

// Suggestions lists connection suggestions.
func (c *Client) Suggestions(ctx context.Context) ([]models.UserSummary, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/users/suggestions", nil)
	if err != nil {
		return nil, err
	}
	return env.Suggestions, nil
}

// RecordView counts a view of another user's profile.
func (c *Client) RecordView(ctx context.Context, id uint) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/users/view/%d", id), nil)
	return err
}

// Connect sends a connection request.
func (c *Client) Connect(ctx context.Context, id uint) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/users/connect/%d", id), nil)
	return err
}

// Accept accepts a connection request from id.
func (c *Client) Accept(ctx context.Context, id uint) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/users/accept/%d", id), nil)
	return err
}

// News returns the sidebar headlines.
func (c *Client) News(ctx context.Context) ([]NewsItem, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/news", nil)
	if err != nil {
		return nil, err
	}
	return env.News, nil
}
