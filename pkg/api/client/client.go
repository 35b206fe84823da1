package client

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
)

// DefaultBaseURL is used when no API address is configured.
const DefaultBaseURL = "http://localhost:4000"

// Client provides typed access to the Studi Bareng API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return errors.New("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload envelope
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Message)
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Profile is the signed-in user's public details.
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Author is the embedded author of a listed post.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Post mirrors the API post payload.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Author    *Author   `json:"author,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SignUp registers an account and returns its token.
func (c *Client) SignUp(ctx context.Context, name, email, password string) (string, error) {
	var resp tokenResponse
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/signup", body, "", &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// SignIn exchanges credentials for a token.
func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	var resp tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/signin", body, "", &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// ChangePassword rotates the caller's password and returns a token for the
// new credentials. The previous token stops working.
func (c *Client) ChangePassword(ctx context.Context, token, current, next string) (string, error) {
	var resp tokenResponse
	body := map[string]string{"currentPassword": current, "newPassword": next}
	if err := c.do(ctx, http.MethodPost, "/auth/password", body, token, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Profile returns the account behind token.
func (c *Client) Profile(ctx context.Context, token string) (Profile, error) {
	var profile Profile
	err := c.do(ctx, http.MethodGet, "/auth/", nil, token, &profile)
	return profile, err
}

// ListPosts returns a page of live posts. Zero limit uses the server default.
func (c *Client) ListPosts(ctx context.Context, token string, skip, limit int) ([]Post, error) {
	query := url.Values{}
	if skip > 0 {
		query.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/posts"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var posts []Post
	if err := c.do(ctx, http.MethodGet, path, nil, token, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// CreatePostInput describes a new post. A nil ExpiresAt uses the server default.
type CreatePostInput struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// CreatePost publishes a post.
func (c *Client) CreatePost(ctx context.Context, token string, input CreatePostInput) (Post, error) {
	var post Post
	err := c.do(ctx, http.MethodPost, "/posts", input, token, &post)
	return post, err
}

// DeletePost removes one of the caller's posts.
func (c *Client) DeletePost(ctx context.Context, token, postID string) (Post, error) {
	var post Post
	err := c.do(ctx, http.MethodDelete, "/posts", map[string]string{"postId": postID}, token, &post)
	return post, err
}
