package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andrianfaa/Studi-Bareng/internal/repository"
)

func TestMapError(t *testing.T) {
	other := errors.New("connection reset")
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, repository.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), repository.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, repository.ErrConflict},
		{"bad uuid", &pgconn.PgError{Code: "22P02"}, repository.ErrNotFound},
		{"fk violation", &pgconn.PgError{Code: "23503"}, repository.ErrInvalidArgument},
		{"unknown pg error", &pgconn.PgError{Code: "57P01"}, nil},
		{"other", other, other},
	}
	for _, tc := range cases {
		got := mapError(tc.in)
		switch {
		case tc.name == "unknown pg error":
			var pgErr *pgconn.PgError
			if !errors.As(got, &pgErr) {
				t.Fatalf("%s: expected pg error passthrough, got %v", tc.name, got)
			}
		case !errors.Is(got, tc.want) && got != tc.want:
			t.Fatalf("%s: mapError(%v) = %v, want %v", tc.name, tc.in, got, tc.want)
		}
	}
}
