package middleware

import (
	"log/slog"
	"net/http"

	"github.com/omendivilg/CoffeeBox/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, user_id, coffee_id, trace_id and span_id when known.
// Handlers retrieve it with logger.FromContext.
//
// Mount it after RequestLogging, Tracing and OptionalAuth so those fields are
// already in the context.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := UserIDFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
