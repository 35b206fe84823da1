package domain

import "time"

// Post is a short-lived piece of content owned by one user.
type Post struct {
	ID        string      `json:"id"`
	AuthorID  string      `json:"authorId"`
	Author    *PostAuthor `json:"author,omitempty"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	ExpiresAt time.Time   `json:"expiresAt"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// PostAuthor is the public projection of a post's author.
type PostAuthor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PostEvent is broadcast to feed subscribers when posts change.
type PostEvent struct {
	Type string `json:"type"`
	Post Post   `json:"post"`
}

// Post event types.
const (
	PostEventCreated = "post.created"
	PostEventDeleted = "post.deleted"
)
