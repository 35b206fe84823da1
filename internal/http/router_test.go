package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andrianfaa/Studi-Bareng/internal/domain"
	"github.com/andrianfaa/Studi-Bareng/internal/repository/memory"
	"github.com/andrianfaa/Studi-Bareng/internal/service/auth"
	"github.com/andrianfaa/Studi-Bareng/internal/service/post"
	"github.com/andrianfaa/Studi-Bareng/internal/ws"
	"github.com/andrianfaa/Studi-Bareng/pkg/crypto"
	jwtpkg "github.com/andrianfaa/Studi-Bareng/pkg/jwt"
)

type testEnv struct {
	router *Router
	repo   *memory.Repository
	hub    *ws.Hub
	codec  *jwtpkg.Codec
}

func newTestEnv(t *testing.T, limiter RateLimiter) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	hasher, err := crypto.NewHasher("password-secret")
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	codec, err := jwtpkg.NewCodec("jwt-secret", 0)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub()
	go hub.Run(ctx)

	if limiter == nil {
		limiter = newRateLimiterStub()
	}
	router := NewRouter(Dependencies{
		Logger:  logger,
		Auth:    auth.New(repo, hasher, codec, logger),
		Posts:   post.New(repo, hub, logger, time.Hour),
		Hub:     hub,
		Limiter: limiter,
	})
	t.Cleanup(router.Close)
	return testEnv{router: router, repo: repo, hub: hub, codec: codec}
}

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.Handler().ServeHTTP(rr, req)

	var payload response
	if rr.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
		}
	}
	return rr, payload
}

func (e testEnv) signup(t *testing.T, name, email, password string) string {
	t.Helper()
	rr, payload := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": password,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status %d: %s", rr.Code, rr.Body.String())
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(payload.Data, &data); err != nil || data.Token == "" {
		t.Fatalf("expected token in signup response: %s", rr.Body.String())
	}
	return data.Token
}

func TestRootWelcome(t *testing.T) {
	env := newTestEnv(t, nil)
	rr, payload := env.do(t, http.MethodGet, "/", "", nil)
	if rr.Code != http.StatusOK || payload.Status != "success" || payload.Message != "Welcome to the API" {
		t.Fatalf("unexpected root response %d %+v", rr.Code, payload)
	}
	rr, payload = env.do(t, http.MethodGet, "/nowhere", "", nil)
	if rr.Code != http.StatusNotFound || payload.Status != "error" {
		t.Fatalf("expected 404 envelope, got %d %+v", rr.Code, payload)
	}
}

func TestSignupThenProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "Ayu", "ayu@example.com", "s3cret")

	rr, payload := env.do(t, http.MethodGet, "/auth/", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var profile auth.Profile
	if err := json.Unmarshal(payload.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.Name != "Ayu" || profile.Email != "ayu@example.com" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if strings.Contains(rr.Body.String(), "password") {
		t.Fatalf("profile leaked password material: %s", rr.Body.String())
	}
}

func TestSignupErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signup(t, "Ayu", "ayu@example.com", "s3cret")

	rr, payload := env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": "Other", "email": "ayu@example.com", "password": "x",
	})
	if rr.Code != http.StatusConflict || payload.Message != "User already exists" {
		t.Fatalf("expected 409, got %d %+v", rr.Code, payload)
	}

	rr, payload = env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"email": "b@x.com"})
	if rr.Code != http.StatusBadRequest || payload.Message != "Name, email, and password are required" {
		t.Fatalf("expected 400, got %d %+v", rr.Code, payload)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader("{not json"))
	bad := httptest.NewRecorder()
	env.router.ServeHTTP(bad, req)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", bad.Code)
	}

	rr, _ = env.do(t, http.MethodGet, "/auth/signup", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestSigninSharedFailureMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signup(t, "Ayu", "ayu@example.com", "s3cret")

	rr, payload := env.do(t, http.MethodPost, "/auth/signin", "", map[string]string{"email": "ayu@example.com", "password": "s3cret"})
	if rr.Code != http.StatusOK || payload.Message != "User authenticated successfully" {
		t.Fatalf("expected signin success, got %d %+v", rr.Code, payload)
	}

	_, wrong := env.do(t, http.MethodPost, "/auth/signin", "", map[string]string{"email": "ayu@example.com", "password": "nope"})
	_, unknown := env.do(t, http.MethodPost, "/auth/signin", "", map[string]string{"email": "ghost@example.com", "password": "s3cret"})
	if wrong.Message != "Invalid email or password" || wrong.Message != unknown.Message {
		t.Fatalf("expected identical failure messages, got %q and %q", wrong.Message, unknown.Message)
	}
}

func TestAuthMiddlewareStates(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "Ayu", "ayu@example.com", "s3cret")

	rr, payload := env.do(t, http.MethodGet, "/auth/", "", nil)
	if rr.Code != http.StatusUnauthorized || payload.Message != "Unauthorized" {
		t.Fatalf("missing header: got %d %+v", rr.Code, payload)
	}

	// Flip a signature character well inside the segment so every bit used counts.
	lastDot := strings.LastIndex(token, ".")
	pos := lastDot + 10
	replacement := byte('A')
	if token[pos] == 'A' {
		replacement = 'B'
	}
	tampered := token[:pos] + string(replacement) + token[pos+1:]
	rr, payload = env.do(t, http.MethodGet, "/auth/", tampered, nil)
	if rr.Code != http.StatusUnauthorized || payload.Message != "Invalid token" {
		t.Fatalf("tampered token: got %d %+v", rr.Code, payload)
	}

	user, err := env.repo.GetUserByEmail(context.Background(), "ayu@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	user.PasswordDigest = strings.Repeat("0", 64)
	if err := env.repo.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("update: %v", err)
	}
	rr, payload = env.do(t, http.MethodGet, "/auth/", token, nil)
	if rr.Code != http.StatusUnauthorized || payload.Message != "Unauthorized" {
		t.Fatalf("stale token: got %d %+v", rr.Code, payload)
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signup(t, "Ayu", "ayu@example.com", "s3cret")
	short, err := jwtpkg.NewCodec("jwt-secret", time.Nanosecond)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	token, err := short.Issue("any", "ayu@example.com", "tag")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	rr, payload := env.do(t, http.MethodGet, "/auth/", token, nil)
	if rr.Code != http.StatusUnauthorized || payload.Message != "Invalid token" {
		t.Fatalf("expired token: got %d %+v", rr.Code, payload)
	}
}

func TestPostsLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.signup(t, "Alice", "alice@example.com", "a")
	bob := env.signup(t, "Bob", "bob@example.com", "b")

	rr, payload := env.do(t, http.MethodPost, "/posts", alice, map[string]string{"title": "Belajar", "content": "Go"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create post: %d %s", rr.Code, rr.Body.String())
	}
	var created domain.Post
	if err := json.Unmarshal(payload.Data, &created); err != nil {
		t.Fatalf("decode post: %v", err)
	}

	rr, payload = env.do(t, http.MethodGet, "/posts?skip=0&limit=5", bob, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list posts: %d %s", rr.Code, rr.Body.String())
	}
	var listed []domain.Post
	if err := json.Unmarshal(payload.Data, &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].Author == nil || listed[0].Author.Name != "Alice" {
		t.Fatalf("unexpected listing %+v", listed)
	}

	rr, payload = env.do(t, http.MethodDelete, "/posts", bob, map[string]string{"postId": created.ID})
	if rr.Code != http.StatusForbidden || payload.Message != "You are not authorized to delete this post" {
		t.Fatalf("expected 403, got %d %+v", rr.Code, payload)
	}
	rr, _ = env.do(t, http.MethodDelete, "/posts", alice, map[string]string{"postId": created.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected delete to succeed, got %d", rr.Code)
	}
	rr, _ = env.do(t, http.MethodDelete, "/posts", alice, map[string]string{"postId": created.ID})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rr.Code)
	}
}

func TestPostsQueryValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "Ayu", "ayu@example.com", "s3cret")
	cases := map[string]string{
		"/posts?skip=abc":  "Invalid skip value",
		"/posts?skip=-1":   "Skip value cannot be negative",
		"/posts?limit=xyz": "Invalid limit value",
	}
	for path, msg := range cases {
		rr, payload := env.do(t, http.MethodGet, path, token, nil)
		if rr.Code != http.StatusBadRequest || payload.Message != msg {
			t.Fatalf("%s: expected 400 %q, got %d %+v", path, msg, rr.Code, payload)
		}
	}
	rr, payload := env.do(t, http.MethodPost, "/posts", token, map[string]string{"title": "only"})
	if rr.Code != http.StatusBadRequest || payload.Message != "Title and content are required" {
		t.Fatalf("expected 400, got %d %+v", rr.Code, payload)
	}
}

func TestRateLimitedSignup(t *testing.T) {
	limiter := newRateLimiterStub()
	reset := time.Unix(1_950_000_000, 0)
	limiter.allowFn = func(key string, limit int, window time.Duration) rateDecision {
		return rateDecision{allowed: false, count: limit, windowEnd: reset}
	}
	env := newTestEnv(t, limiter)

	rr, payload := env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"name": "a", "email": "a@x.com", "password": "p"})
	if rr.Code != http.StatusTooManyRequests || payload.Message != "Too many requests" {
		t.Fatalf("expected 429, got %d %+v", rr.Code, payload)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected remaining header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != "1950000000" {
		t.Fatalf("unexpected reset header %q", got)
	}
	calls := limiter.snapshot()
	if len(calls) != 1 || !strings.HasPrefix(calls[0].key, "ip:") || calls[0].limit != rateLimitSignup {
		t.Fatalf("unexpected limiter calls %+v", calls)
	}
}

func TestAuthenticatedRoutesRateLimitPerUser(t *testing.T) {
	limiter := newRateLimiterStub()
	env := newTestEnv(t, limiter)
	token := env.signup(t, "Ayu", "ayu@example.com", "s3cret")
	identity, err := env.router.auth.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	env.do(t, http.MethodGet, "/posts", token, nil)
	calls := limiter.snapshot()
	last := calls[len(calls)-1]
	if last.key != "user:"+identity.ID {
		t.Fatalf("expected per-user key, got %q", last.key)
	}
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	rl := newMemoryRateLimiter(func() time.Time { return now })
	defer rl.Close()

	for i := 1; i <= 2; i++ {
		if d := rl.Allow("ip:1", 2, time.Minute); !d.allowed || d.count != i {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}
	if d := rl.Allow("ip:1", 2, time.Minute); d.allowed {
		t.Fatalf("expected third request to be limited")
	}
	now = now.Add(2 * time.Minute)
	if d := rl.Allow("ip:1", 2, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("expected fresh window, got %+v", d)
	}

	now = now.Add(rateLimiterPruneInterval)
	rl.Allow("ip:2", 2, time.Minute)
	if _, ok := rl.windows["ip:1"]; ok {
		t.Fatalf("expected expired window to be pruned")
	}
	if len(rl.windows) != 1 {
		t.Fatalf("expected only the live window, got %d", len(rl.windows))
	}
}

func signupFrom(t *testing.T, handler http.Handler, remoteAddr, forwardedFor string, i int) int {
	t.Helper()
	body := fmt.Sprintf(`{"name":"n%d","email":"user%d@example.com","password":"pw"}`, i, i)
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Code
}

func TestSignupRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, newMemoryRateLimiter(time.Now))
	handler := env.router.Handler()

	accepted := 0
	for i := 0; i < 20; i++ {
		code := signupFrom(t, handler, "203.0.113.7:5555", fmt.Sprintf("10.0.0.%d", i), i)
		if code == http.StatusCreated {
			accepted++
		}
	}
	if accepted != rateLimitSignup {
		t.Fatalf("expected %d signups from one peer, got %d", rateLimitSignup, accepted)
	}
}

func TestSignupRateLimitUsesForwardedClientBehindTrustedProxy(t *testing.T) {
	limiter := newRateLimiterStub()
	env := newTestEnv(t, limiter)
	env.router.proxies = proxyTrust{netip.MustParsePrefix("203.0.113.0/24")}
	handler := env.router.Handler()

	signupFrom(t, handler, "203.0.113.7:5555", "198.51.100.1, 198.51.100.9", 1)
	signupFrom(t, handler, "192.0.2.50:4000", "198.51.100.1", 2)

	calls := limiter.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected two limiter calls, got %+v", calls)
	}
	if calls[0].key != "ip:198.51.100.9" {
		t.Fatalf("expected nearest untrusted hop, got %q", calls[0].key)
	}
	if calls[1].key != "ip:192.0.2.50" {
		t.Fatalf("expected untrusted peer address, got %q", calls[1].key)
	}
}

func TestClientAddr(t *testing.T) {
	trust := proxyTrust{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("2001:db8::/32"),
	}
	cases := []struct {
		name      string
		trust     proxyTrust
		remote    string
		forwarded []string
		want      string
	}{
		{"no trust ignores header", nil, "10.1.1.1:80", []string{"1.2.3.4"}, "10.1.1.1"},
		{"untrusted peer", trust, "192.0.2.1:80", []string{"1.2.3.4"}, "192.0.2.1"},
		{"trusted peer without header", trust, "10.1.1.1:80", nil, "10.1.1.1"},
		{"skips trusted hops", trust, "10.1.1.1:80", []string{"1.2.3.4, 10.2.2.2"}, "1.2.3.4"},
		{"spoofed leftmost entry", trust, "10.1.1.1:80", []string{"9.9.9.9, 1.2.3.4"}, "1.2.3.4"},
		{"multiple header lines", trust, "10.1.1.1:80", []string{"5.6.7.8", "10.3.3.3"}, "5.6.7.8"},
		{"garbage hop", trust, "10.1.1.1:80", []string{"1.2.3.4, bogus, 10.2.2.2"}, "10.2.2.2"},
		{"ipv6 peer", trust, "[2001:db8::1]:443", []string{"2001:db9::5"}, "2001:db9::5"},
		{"mapped ipv4 hop", trust, "10.1.1.1:80", []string{"::ffff:1.2.3.4"}, "1.2.3.4"},
		{"remote without port", nil, "192.0.2.9", nil, "192.0.2.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for _, line := range tc.forwarded {
				req.Header.Add("X-Forwarded-For", line)
			}
			if got := tc.trust.clientAddr(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestChangePasswordRotatesToken(t *testing.T) {
	env := newTestEnv(t, nil)
	old := env.signup(t, "Ayu", "ayu@example.com", "s3cret")

	rr, payload := env.do(t, http.MethodPost, "/auth/password", old, map[string]string{
		"currentPassword": "wrong", "newPassword": "n3w",
	})
	if rr.Code != http.StatusBadRequest || payload.Message != "Current password is incorrect" {
		t.Fatalf("expected 400, got %d %+v", rr.Code, payload)
	}

	rr, payload = env.do(t, http.MethodPost, "/auth/password", old, map[string]string{
		"currentPassword": "s3cret", "newPassword": "n3w",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %+v", rr.Code, payload)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(payload.Data, &data); err != nil || data.Token == "" {
		t.Fatalf("expected rotated token: %s", rr.Body.String())
	}

	rr, payload = env.do(t, http.MethodGet, "/auth/", old, nil)
	if rr.Code != http.StatusUnauthorized || payload.Message != "Unauthorized" {
		t.Fatalf("old token: expected 401, got %d %+v", rr.Code, payload)
	}
	rr, _ = env.do(t, http.MethodGet, "/auth/", data.Token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("rotated token: expected 200, got %d", rr.Code)
	}
}

func TestProfileRouteIsExact(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "Ayu", "ayu@example.com", "s3cret")

	for _, tok := range []string{"", token} {
		rr, payload := env.do(t, http.MethodGet, "/auth/anything", tok, nil)
		if rr.Code != http.StatusNotFound || payload.Message != "Not found" {
			t.Fatalf("token %t: expected 404, got %d %+v", tok != "", rr.Code, payload)
		}
	}
	rr, payload := env.do(t, http.MethodPost, "/auth/", token, nil)
	if rr.Code != http.StatusMethodNotAllowed || payload.Message != "Method not allowed" {
		t.Fatalf("expected 405, got %d %+v", rr.Code, payload)
	}
}

type failingUserLookup struct {
	*memory.Repository
	err error
}

func (f failingUserLookup) GetUserByID(context.Context, string) (*domain.User, error) {
	return nil, f.err
}

func TestAuthMiddlewareStorageFailureIsInternal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	hasher, err := crypto.NewHasher("password-secret")
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	codec, err := jwtpkg.NewCodec("jwt-secret", 0)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	users := failingUserLookup{Repository: repo, err: errors.New("connection reset")}
	router := NewRouter(Dependencies{
		Logger:  logger,
		Auth:    auth.New(users, hasher, codec, logger),
		Posts:   post.New(repo, nil, logger, time.Hour),
		Limiter: newRateLimiterStub(),
	})
	t.Cleanup(router.Close)
	env := testEnv{router: router, repo: repo, codec: codec}

	token := env.signup(t, "Ayu", "ayu@example.com", "s3cret")
	rr, payload := env.do(t, http.MethodGet, "/auth/", token, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d %+v", rr.Code, payload)
	}
	if payload.Status != "error" || payload.Message != "Internal server error" {
		t.Fatalf("unexpected envelope %+v", payload)
	}
	if strings.Contains(rr.Body.String(), "connection reset") {
		t.Fatalf("internal cause leaked: %s", rr.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	env.router.dbHealth = func(context.Context) error { return errors.New("db down") }
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	env.router.dbHealth = func(context.Context) error { return nil }
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestPostFeedWebsocket(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "Ayu", "ayu@example.com", "s3cret")
	server := httptest.NewServer(env.router.Handler())
	defer server.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws/posts", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("unexpected handshake status %d", resp.StatusCode)
	}

	// The handshake completes before the hub registers the client, so keep
	// publishing until the first event arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = env.hub.PublishPost(domain.PostEventCreated, domain.Post{ID: "p-1", Title: "t"})
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event domain.PostEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != domain.PostEventCreated || event.Post.Title != "t" {
		t.Fatalf("unexpected event %+v", event)
	}
}

type rateLimiterCall struct {
	key    string
	limit  int
	window time.Duration
}

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimiterCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (s *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	s.mu.Lock()
	s.calls = append(s.calls, rateLimiterCall{key: key, limit: limit, window: window})
	fn := s.allowFn
	s.mu.Unlock()
	if fn != nil {
		return fn(key, limit, window)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
}

func (s *rateLimiterStub) Close() {}

func (s *rateLimiterStub) snapshot() []rateLimiterCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rateLimiterCall(nil), s.calls...)
}
