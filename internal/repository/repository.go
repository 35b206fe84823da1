package repository

import (
	"context"
	"time"

	"github.com/andrianfaa/Studi-Bareng/internal/domain"
)

// UserRepository persists users. Email uniqueness is enforced by the store.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
}

// PostRepository persists posts.
type PostRepository interface {
	CreatePost(ctx context.Context, post *domain.Post) error
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	ListPosts(ctx context.Context, now time.Time, skip, limit int) ([]domain.Post, error)
	DeletePost(ctx context.Context, id string) error
	DeleteExpiredPosts(ctx context.Context, now time.Time) (int64, error)
}
