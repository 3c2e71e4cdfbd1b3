package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/internal/apierrors"
)

type contextKey string

// AuthUserContextKey stores the HTTP Basic-authenticated username in the
// request context.
const AuthUserContextKey contextKey = "auth_user"

// PasswordVerifier is the subset of internal/userstore.Store the auth
// middleware needs: checking a plaintext password against a registered
// user's stored hash.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, username, password string) (bool, error)
}

// AuthMiddleware enforces HTTP Basic authentication on every route it
// wraps.
type AuthMiddleware struct {
	logger   zerolog.Logger
	verifier PasswordVerifier
}

// NewAuthMiddleware creates the Basic-auth middleware over a password
// verifier (normally an *internal/userstore.Store).
func NewAuthMiddleware(logger zerolog.Logger, verifier PasswordVerifier) *AuthMiddleware {
	return &AuthMiddleware{logger: logger, verifier: verifier}
}

// Handler returns the middleware handler function.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			writeAuthRequired(w)
			return
		}

		valid, err := am.verifier.VerifyPassword(r.Context(), username, password)
		if err != nil {
			am.logger.Error().Err(err).Msg("password verification failed")
			writeError(w, apierrors.TransientStore("credential check failed", err))
			return
		}
		if !valid {
			writeAuthRequired(w)
			return
		}

		ctx := context.WithValue(r.Context(), AuthUserContextKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAuthRequired(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="hiitrack"`)
	writeError(w, apierrors.AuthRequired("valid HTTP Basic credentials required"))
}

// writeError maps a taxonomy error (internal/apierrors) to its HTTP status
// and a small JSON body, shared by every middleware that can reject a
// request before it reaches a handler.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if apierrors.Is(err, apierrors.KindTransientStore) {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(apierrors.StatusCode(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// AuthUser extracts the authenticated username from the request context.
func AuthUser(ctx context.Context) string {
	if v, ok := ctx.Value(AuthUserContextKey).(string); ok {
		return v
	}
	return ""
}
