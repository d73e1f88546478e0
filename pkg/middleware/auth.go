package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
	"github.com/omendivilg/CoffeeBox/pkg/httputil"
)

type contextKeyType string

const userIDKey contextKeyType = "user_id"

// ErrMalformedAuthHeader is returned for an Authorization header that is
// present but not a bearer token.
var ErrMalformedAuthHeader = errors.New("invalid authorization header format")

// Authenticator resolves a bearer token. It returns a context carrying
// whatever the application needs downstream, plus the caller's user id.
type Authenticator func(ctx context.Context, token string) (context.Context, string, error)

// BearerToken extracts the token from the Authorization header. ok is false
// when no header was sent.
func BearerToken(r *http.Request) (token string, ok bool, err error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false, nil
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", true, ErrMalformedAuthHeader
	}
	return token, true, nil
}

// OptionalAuth authenticates requests that carry a bearer token and lets
// anonymous requests through untouched. A token that is present but invalid
// is rejected with 401 rather than silently downgraded to anonymous.
func OptionalAuth(authenticate Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok, err := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				httputil.WriteError(w, r, apperrors.Unauthorized(err.Error()), nil)
				return
			}

			ctx, userID, err := authenticate(r.Context(), token)
			if err != nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), nil)
				return
			}

			ctx = context.WithValue(ctx, userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that OptionalAuth did not authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			httputil.WriteError(w, r, apperrors.Unauthorized("sign in to continue"), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
