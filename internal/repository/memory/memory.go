// Package memory provides an in-process store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/andrianfaa/Studi-Bareng/internal/domain"
	"github.com/andrianfaa/Studi-Bareng/internal/repository"
)

// Repository keeps users and posts in maps guarded by a single lock.
type Repository struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	byEmail map[string]string
	posts   map[string]domain.Post
}

var (
	_ repository.UserRepository = (*Repository)(nil)
	_ repository.PostRepository = (*Repository)(nil)
)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		users:   make(map[string]domain.User),
		byEmail: make(map[string]string),
		posts:   make(map[string]domain.Post),
	}
}

// CreateUser inserts a user, rejecting duplicate emails with repository.ErrConflict.
func (r *Repository) CreateUser(_ context.Context, user *domain.User) error {
	if user == nil || user.ID == "" {
		return repository.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return repository.ErrConflict
	}
	if _, ok := r.users[user.ID]; ok {
		return repository.ErrConflict
	}
	r.users[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := r.users[id]
	return &u, nil
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// UpdateUser replaces a stored user, keeping the email index consistent.
func (r *Repository) UpdateUser(_ context.Context, user *domain.User) error {
	if user == nil {
		return repository.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Email != user.Email {
		if _, taken := r.byEmail[user.Email]; taken {
			return repository.ErrConflict
		}
		delete(r.byEmail, current.Email)
		r.byEmail[user.Email] = user.ID
	}
	r.users[user.ID] = *user
	return nil
}

// CreatePost inserts a post.
func (r *Repository) CreatePost(_ context.Context, post *domain.Post) error {
	if post == nil || post.ID == "" {
		return repository.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[post.AuthorID]; !ok {
		return repository.ErrInvalidArgument
	}
	if _, ok := r.posts[post.ID]; ok {
		return repository.ErrConflict
	}
	stored := *post
	stored.Author = nil
	r.posts[post.ID] = stored
	return nil
}

// GetPostByID fetches a post.
func (r *Repository) GetPostByID(_ context.Context, id string) (*domain.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

// ListPosts returns unexpired posts newest first, with author details.
func (r *Repository) ListPosts(_ context.Context, now time.Time, skip, limit int) ([]domain.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	live := make([]domain.Post, 0, len(r.posts))
	for _, p := range r.posts {
		if !p.ExpiresAt.After(now) {
			continue
		}
		if u, ok := r.users[p.AuthorID]; ok {
			p.Author = &domain.PostAuthor{ID: u.ID, Name: u.Name, Email: u.Email}
		}
		live = append(live, p)
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.After(live[j].CreatedAt)
	})
	if skip >= len(live) {
		return []domain.Post{}, nil
	}
	live = live[skip:]
	if limit >= 0 && limit < len(live) {
		live = live[:limit]
	}
	return live, nil
}

// DeletePost removes a post by identifier.
func (r *Repository) DeletePost(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.posts, id)
	return nil
}

// DeleteExpiredPosts purges posts whose expiry has passed.
func (r *Repository) DeleteExpiredPosts(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, p := range r.posts {
		if !p.ExpiresAt.After(now) {
			delete(r.posts, id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }
