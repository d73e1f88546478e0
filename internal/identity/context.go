package identity

import (
	"context"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	"github.com/omendivilg/CoffeeBox/pkg/middleware"
)

type userKey struct{}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey{}).(*domain.User)
	return user
}

// Authenticator adapts v for middleware.OptionalAuth. info may be nil.
func Authenticator(v *Verifier, info *UserInfoClient) middleware.Authenticator {
	return func(ctx context.Context, token string) (context.Context, string, error) {
		user, err := v.Verify(token)
		if err != nil {
			return ctx, "", err
		}
		if info != nil {
			enriched := info.Enrich(ctx, token, *user)
			user = &enriched
		}
		return WithUser(ctx, user), user.ID, nil
	}
}
