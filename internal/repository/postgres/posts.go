package postgres

import (
	"context"
	"time"

	"github.com/andrianfaa/Studi-Bareng/internal/domain"
	"github.com/andrianfaa/Studi-Bareng/internal/repository"
)

const postColumns = `p.id, p.author_id, p.title, p.content, p.expires_at, p.created_at, p.updated_at`

// CreatePost inserts a post.
func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) error {
	if post == nil {
		return repository.ErrInvalidArgument
	}
	const query = `INSERT INTO posts (id, author_id, title, content, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, post.ID, post.AuthorID, post.Title, post.Content, utc(post.ExpiresAt), utc(post.CreatedAt), utc(post.UpdatedAt))
	return mapError(err)
}

// GetPostByID fetches a post without its author projection.
func (r *Repository) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	const query = `SELECT ` + postColumns + ` FROM posts p WHERE p.id = $1`
	var p domain.Post
	if err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

// ListPosts returns unexpired posts newest first, with author details.
func (r *Repository) ListPosts(ctx context.Context, now time.Time, skip, limit int) ([]domain.Post, error) {
	const query = `SELECT ` + postColumns + `, u.id, u.name, u.email
		FROM posts p
		INNER JOIN users u ON u.id = p.author_id
		WHERE p.expires_at > $1
		ORDER BY p.created_at DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.pool.Query(ctx, query, now.UTC(), skip, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	posts := make([]domain.Post, 0)
	for rows.Next() {
		var (
			p      domain.Post
			author domain.PostAuthor
		)
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt, &author.ID, &author.Name, &author.Email); err != nil {
			return nil, err
		}
		p.Author = &author
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// DeletePost removes a post by identifier.
func (r *Repository) DeletePost(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteExpiredPosts purges posts whose expiry has passed.
func (r *Repository) DeleteExpiredPosts(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}
