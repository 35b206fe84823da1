package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andrianfaa/Studi-Bareng/internal/service/auth"
	"github.com/andrianfaa/Studi-Bareng/internal/service/post"
	"github.com/andrianfaa/Studi-Bareng/internal/ws"
	"github.com/andrianfaa/Studi-Bareng/pkg/apperr"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux            *http.ServeMux
	logger         *slog.Logger
	auth           auth.Service
	posts          post.Service
	hub            *ws.Hub
	upgrader       websocket.Upgrader
	limiter        RateLimiter
	dbHealth       func(context.Context) error
	allowedOrigins []string
	proxies        proxyTrust

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	authFailures       *prometheus.CounterVec
}

// Dependencies groups what the router needs. Hub, Limiter and DBHealth are optional.
// TrustedProxies names the peers whose X-Forwarded-For header is believed.
type Dependencies struct {
	Logger         *slog.Logger
	Auth           auth.Service
	Posts          post.Service
	Hub            *ws.Hub
	Limiter        RateLimiter
	DBHealth       func(context.Context) error
	AllowedOrigins []string
	TrustedProxies []netip.Prefix
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitSignin    = 12
	rateLimitPassword  = 5
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitRealtime  = 30
	healthCheckTimeout = 2 * time.Second
	sseIdleTimeout     = 15 * time.Second
	maxBodyBytes       = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		auth:   deps.Auth,
		posts:  deps.Posts,
		hub:    deps.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:        deps.Limiter,
		dbHealth:       deps.DBHealth,
		allowedOrigins: deps.AllowedOrigins,
		proxies:        proxyTrust(deps.TrustedProxies),
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the router wrapped with CORS handling.
func (r *Router) Handler() http.Handler {
	origins := r.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	})(r)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/", r.audit(r.handleRoot))
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/signup", r.audit(r.withRateLimit("signup", rateLimitSignup, rateWindowDefault, r.rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/signin", r.audit(r.withRateLimit("signin", rateLimitSignin, rateWindowDefault, r.rateLimitKeyIP, r.handleSignin)))
	r.mux.HandleFunc("/auth/password", r.audit(r.handlerAuthRate("password", rateLimitPassword, rateWindowDefault, r.handleChangePassword)))
	r.mux.HandleFunc("/auth/{$}", r.audit(r.handlerAuthRate("profile", rateLimitUserRead, rateWindowDefault, r.handleProfile)))
	r.mux.HandleFunc("/posts", r.audit(r.handlerAuthRate("posts", rateLimitUserWrite, rateWindowDefault, r.handlePosts)))
	r.mux.HandleFunc("/posts/stream", r.audit(r.handlerAuthRate("posts_stream", rateLimitRealtime, rateWindowRealtime, r.handlePostsSSE)))
	r.mux.HandleFunc("/ws/posts", r.audit(r.handlerAuthRate("posts_ws", rateLimitRealtime, rateWindowRealtime, r.handlePostsWS)))
}

func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeSuccess(w, http.StatusOK, "Welcome to the API", nil)
}

type tokenPayload struct {
	Token string `json:"token"`
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.SignUpInput
	if !r.decodeBody(w, req, &payload) {
		return
	}
	token, err := r.auth.SignUp(req.Context(), payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "User signed up successfully", tokenPayload{Token: token})
}

func (r *Router) handleSignin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.SignInInput
	if !r.decodeBody(w, req, &payload) {
		return
	}
	token, err := r.auth.SignIn(req.Context(), payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User authenticated successfully", tokenPayload{Token: token})
}

func (r *Router) handleChangePassword(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := r.identity(w, req)
	if !ok {
		return
	}
	var payload auth.ChangePasswordInput
	if !r.decodeBody(w, req, &payload) {
		return
	}
	token, err := r.auth.ChangePassword(req.Context(), identity.ID, payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password changed successfully", tokenPayload{Token: token})
}

func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := r.identity(w, req)
	if !ok {
		return
	}
	profile, err := r.auth.Profile(req.Context(), identity.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User profile retrieved successfully", profile)
}

func (r *Router) handlePosts(w http.ResponseWriter, req *http.Request) {
	identity, ok := r.identity(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		query, err := parseListQuery(req)
		if err != nil {
			writeAppError(w, err)
			return
		}
		posts, err := r.posts.List(req.Context(), query)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Posts retrieved successfully", posts)
	case http.MethodPost:
		var payload post.CreateInput
		if !r.decodeBody(w, req, &payload) {
			return
		}
		created, err := r.posts.Create(req.Context(), identity.ID, payload)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "Post created successfully", created)
	case http.MethodDelete:
		var payload struct {
			PostID string `json:"postId"`
		}
		if !r.decodeBody(w, req, &payload) {
			return
		}
		deleted, err := r.posts.Delete(req.Context(), identity.ID, payload.PostID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Post deleted successfully", deleted)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handlePostsWS(w http.ResponseWriter, req *http.Request) {
	if _, ok := r.identity(w, req); !ok {
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Post feed unavailable")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	if !r.hub.Register(ws.FeedTopic, client) {
		client.Close()
		return
	}
	go func() {
		defer func() {
			r.hub.Unregister(ws.FeedTopic, client)
			client.Close()
		}()
		client.Wait()
	}()
}

func (r *Router) handlePostsSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, ok := r.identity(w, req); !ok {
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Post feed unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	if !r.hub.Register(ws.FeedTopic, client) {
		return
	}
	defer r.hub.Unregister(ws.FeedTopic, client)

	ticker := time.NewTicker(sseIdleTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			client.Close()
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if _, err := client.KeepAlive(sseIdleTimeout); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"time":       time.Now().UTC().Format(time.RFC3339Nano),
		"components": components,
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// identity returns the caller attached by requireAuth.
func (r *Router) identity(w http.ResponseWriter, req *http.Request) (auth.Identity, bool) {
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return auth.Identity{}, false
	}
	return identity, true
}

// decodeBody reads a JSON body into dst. An empty body leaves dst zeroed so
// the service reports the missing fields.
func (r *Router) decodeBody(w http.ResponseWriter, req *http.Request, dst any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func parseListQuery(req *http.Request) (post.ListQuery, error) {
	var q post.ListQuery
	values := req.URL.Query()
	if raw := strings.TrimSpace(values.Get("skip")); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil {
			return q, apperr.BadRequest("Invalid skip value")
		}
		q.Skip = skip
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit == 0 {
			return q, apperr.BadRequest("Invalid limit value")
		}
		q.Limit = limit
	}
	return q, nil
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := r.proxies.clientAddr(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if identity, ok := identityFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", identity.ID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "Not found")
}
