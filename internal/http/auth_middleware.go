package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/andrianfaa/Studi-Bareng/internal/service/auth"
	"github.com/andrianfaa/Studi-Bareng/pkg/apperr"
)

type authContextKey string

const contextKeyAuth authContextKey = "studi-auth-identity"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the Authorization header, re-verifies the token
// against the stored user and enriches the context with the identity.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, auth.Identity, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		r.recordAuthFailure("header")
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return req.Context(), auth.Identity{}, false
	}
	identity, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		if apperr.IsKind(err, apperr.KindUnauthorized) {
			r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
			r.recordAuthFailure(authFailureReason(err))
		} else {
			r.logger.Error("token validation errored", "error", err, "path", req.URL.Path)
		}
		writeAppError(w, err)
		return req.Context(), auth.Identity{}, false
	}
	ctx := context.WithValue(req.Context(), contextKeyAuth, identity)
	return ctx, identity, true
}

// identityFromContext extracts the authenticated caller from context.
func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}

func authFailureReason(err error) string {
	if appErr, ok := apperr.As(err); ok && appErr.Message == "Invalid token" {
		return "token"
	}
	return "stale"
}
