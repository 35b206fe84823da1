package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/andrianfaa/Studi-Bareng/internal/domain"
	"github.com/andrianfaa/Studi-Bareng/internal/repository"
)

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	repo := New()
	ctx := context.Background()
	if err := repo.CreateUser(ctx, &domain.User{ID: "u-1", Email: "a@x.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.CreateUser(ctx, &domain.User{ID: "u-2", Email: "a@x.com"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := repo.GetUserByEmail(ctx, "A@x.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected case-sensitive lookup to miss, got %v", err)
	}
}

func TestConcurrentSignupsHaveOneWinner(t *testing.T) {
	repo := New()
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.CreateUser(ctx, &domain.User{ID: fmt.Sprintf("u-%d", i), Email: "race@x.com"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, repository.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if created != 1 || conflicts != 19 {
		t.Fatalf("expected 1 winner and 19 conflicts, got %d/%d", created, conflicts)
	}
}

func TestUpdateUserMovesEmailIndex(t *testing.T) {
	repo := New()
	ctx := context.Background()
	_ = repo.CreateUser(ctx, &domain.User{ID: "u-1", Email: "a@x.com"})
	_ = repo.CreateUser(ctx, &domain.User{ID: "u-2", Email: "b@x.com"})

	if err := repo.UpdateUser(ctx, &domain.User{ID: "u-1", Email: "b@x.com"}); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := repo.UpdateUser(ctx, &domain.User{ID: "u-1", Email: "c@x.com", PasswordDigest: "new"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := repo.GetUserByEmail(ctx, "a@x.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected old email to be released, got %v", err)
	}
	u, err := repo.GetUserByEmail(ctx, "c@x.com")
	if err != nil || u.PasswordDigest != "new" {
		t.Fatalf("unexpected user %+v err %v", u, err)
	}
	if err := repo.UpdateUser(ctx, &domain.User{ID: "missing"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPostsOrdersAndPaginates(t *testing.T) {
	repo := New()
	ctx := context.Background()
	_ = repo.CreateUser(ctx, &domain.User{ID: "u-1", Name: "A", Email: "a@x.com"})

	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		post := &domain.Post{
			ID:        fmt.Sprintf("p-%d", i),
			AuthorID:  "u-1",
			Title:     "t",
			Content:   "c",
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
			ExpiresAt: now.Add(time.Hour),
		}
		if err := repo.CreatePost(ctx, post); err != nil {
			t.Fatalf("create post: %v", err)
		}
	}
	_ = repo.CreatePost(ctx, &domain.Post{ID: "old", AuthorID: "u-1", CreatedAt: now.Add(time.Hour), ExpiresAt: now})

	page, err := repo.ListPosts(ctx, now, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != "p-3" || page[1].ID != "p-2" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page[0].Author == nil || page[0].Author.Email != "a@x.com" {
		t.Fatalf("expected author projection, got %+v", page[0].Author)
	}
	if empty, _ := repo.ListPosts(ctx, now, 10, 2); len(empty) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(empty))
	}

	removed, err := repo.DeleteExpiredPosts(ctx, now)
	if err != nil || removed != 1 {
		t.Fatalf("expected one expired post removed, got %d (%v)", removed, err)
	}
}

func TestCreatePostRequiresAuthor(t *testing.T) {
	repo := New()
	err := repo.CreatePost(context.Background(), &domain.Post{ID: "p-1", AuthorID: "ghost"})
	if !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
