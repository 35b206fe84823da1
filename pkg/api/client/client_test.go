package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	state := "success"
	if status >= http.StatusBadRequest {
		state = "error"
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"status": state, "message": message, "data": data})
}

func TestSignInDecodesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/signin" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@x.com" || body["password"] != "pw" {
			t.Errorf("unexpected body %v", body)
		}
		writeEnvelope(w, http.StatusOK, "User authenticated successfully", map[string]string{"token": "tok"})
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	token, err := cli.SignIn(context.Background(), "a@x.com", "pw")
	if err != nil || token != "tok" {
		t.Fatalf("unexpected token %q err %v", token, err)
	}
}

func TestErrorsCarryEnvelopeMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, "Invalid token", nil)
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	_, err := cli.Profile(context.Background(), "bad")
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid token" {
		t.Fatalf("expected envelope message, got %v", err)
	}
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized classification")
	}
}

func TestListPostsSendsQueryAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		if r.URL.Query().Get("skip") != "5" || r.URL.Query().Get("limit") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		writeEnvelope(w, http.StatusOK, "Posts retrieved successfully", []map[string]any{
			{"id": "p-1", "title": "hi", "author": map[string]string{"name": "Ayu"}},
		})
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	posts, err := cli.ListPosts(context.Background(), "tok", 5, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 1 || posts[0].Author == nil || posts[0].Author.Name != "Ayu" {
		t.Fatalf("unexpected posts %+v", posts)
	}
}

func TestDeletePostSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.Method != http.MethodDelete || body["postId"] != "p-9" {
			t.Errorf("unexpected delete request %s %v", r.Method, body)
		}
		writeEnvelope(w, http.StatusOK, "Post deleted successfully", map[string]string{"id": "p-9"})
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	post, err := cli.DeletePost(context.Background(), "tok", "p-9")
	if err != nil || post.ID != "p-9" {
		t.Fatalf("unexpected result %+v err %v", post, err)
	}
}

func TestChangePasswordReturnsRotatedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.Method != http.MethodPost || r.URL.Path != "/auth/password" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer old" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		if body["currentPassword"] != "a" || body["newPassword"] != "b" {
			t.Errorf("unexpected body %v", body)
		}
		writeEnvelope(w, http.StatusOK, "Password changed successfully", map[string]string{"token": "new"})
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	token, err := cli.ChangePassword(context.Background(), "old", "a", "b")
	if err != nil || token != "new" {
		t.Fatalf("unexpected token %q err %v", token, err)
	}
}

func TestNewNormalisesBaseURL(t *testing.T) {
	cli, err := New("localhost:4000/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.baseURL != "http://localhost:4000" {
		t.Fatalf("unexpected base url %q", cli.baseURL)
	}
}
