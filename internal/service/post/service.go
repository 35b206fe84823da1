package post

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"github.com/andrianfaa/Studi-Bareng/internal/domain"
	"github.com/andrianfaa/Studi-Bareng/internal/repository"
	"github.com/andrianfaa/Studi-Bareng/pkg/apperr"
)

const (
	// DefaultLimit is the page size used when none is requested.
	DefaultLimit = 10
	// MaxLimit caps the page size.
	MaxLimit = 100

	defaultTTL = 24 * time.Hour
)

const (
	msgContentRequired = "Title and content are required"
	msgExpiryInPast    = "Expiry must be in the future"
	msgNegativeSkip    = "Skip value cannot be negative"
	msgInvalidLimit    = "Invalid limit value"
	msgPostIDRequired  = "Post ID is required"
	msgPostNotFound    = "Post not found"
	msgNotAuthor       = "You are not authorized to delete this post"
	msgAuthorNotFound  = "User not found"
)

// Publisher receives post lifecycle events.
type Publisher interface {
	PublishPost(eventType string, post domain.Post) error
}

// Service manages posts.
type Service struct {
	posts     repository.PostRepository
	publisher Publisher
	logger    *slog.Logger
	ttl       time.Duration
	now       func() time.Time
}

// New constructs a Service. ttl is the lifetime given to posts created
// without an explicit expiry; publisher may be nil.
func New(posts repository.PostRepository, publisher Publisher, logger *slog.Logger, ttl time.Duration) Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{posts: posts, publisher: publisher, logger: logger, ttl: ttl, now: time.Now}
}

// CreateInput carries a new post.
type CreateInput struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Validate reports missing fields.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required),
		validation.Field(&in.Content, validation.Required),
	)
}

// ListQuery selects a page of posts. A zero Limit means DefaultLimit.
type ListQuery struct {
	Skip  int
	Limit int
}

// Create stores a post owned by authorID.
func (s Service) Create(ctx context.Context, authorID string, in CreateInput) (*domain.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if err := in.Validate(); err != nil {
		return nil, apperr.BadRequest(msgContentRequired)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return nil, apperr.BadRequest(msgExpiryInPast)
		}
		expiresAt = in.ExpiresAt.UTC()
	}

	post := &domain.Post{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Title:     in.Title,
		Content:   in.Content,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		if errors.Is(err, repository.ErrInvalidArgument) {
			return nil, apperr.NotFound(msgAuthorNotFound)
		}
		return nil, s.internal("create post", err)
	}
	s.logger.Info("post created", "post_id", post.ID, "user_id", authorID)
	s.publish(domain.PostEventCreated, *post)
	return post, nil
}

// List returns live posts newest first.
func (s Service) List(ctx context.Context, q ListQuery) ([]domain.Post, error) {
	if q.Skip < 0 {
		return nil, apperr.BadRequest(msgNegativeSkip)
	}
	switch {
	case q.Limit < 0:
		return nil, apperr.BadRequest(msgInvalidLimit)
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	posts, err := s.posts.ListPosts(ctx, s.now().UTC(), q.Skip, q.Limit)
	if err != nil {
		return nil, s.internal("list posts", err)
	}
	if posts == nil {
		posts = []domain.Post{}
	}
	return posts, nil
}

// Delete removes a post if userID authored it and returns the removed post.
func (s Service) Delete(ctx context.Context, userID, postID string) (*domain.Post, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, apperr.BadRequest(msgPostIDRequired)
	}
	post, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgPostNotFound)
		}
		return nil, s.internal("get post", err)
	}
	if !post.ExpiresAt.After(s.now()) {
		return nil, apperr.NotFound(msgPostNotFound)
	}
	if post.AuthorID != userID {
		return nil, apperr.Forbidden(msgNotAuthor)
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgPostNotFound)
		}
		return nil, s.internal("delete post", err)
	}
	s.logger.Info("post deleted", "post_id", post.ID, "user_id", userID)
	s.publish(domain.PostEventDeleted, *post)
	return post, nil
}

func (s Service) publish(eventType string, post domain.Post) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPost(eventType, post); err != nil {
		s.logger.Warn("publish post event failed", "type", eventType, "post_id", post.ID, "error", err)
	}
}

func (s Service) internal(op string, err error) error {
	s.logger.Error("post operation failed", "op", op, "error", err)
	return apperr.Internal(err)
}
