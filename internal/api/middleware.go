package api

import (
	"context"
	"log/slog"
	"net/http"
	"smartbank/internal/domain"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKeyIdentity struct{}

func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(contextKeyIdentity{}).(domain.Identity)
	return identity, ok
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity{}, identity)
}

// RequireAuth resolves the bearer token into a domain.Identity on the
// request context or answers 401.
func RequireAuth(tokens *TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "Unauthorized access - missing token",
					slog.String("request_id", middleware.GetReqID(ctx)))
				writeJSON(w, logger, ErrorResponse{Error: "Missing or invalid Authorization header", Code: "UNAUTHORIZED"}, http.StatusUnauthorized)
				return
			}

			identity, err := tokens.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "Unauthorized access - invalid token",
					slog.String("error", err.Error()),
					slog.String("request_id", middleware.GetReqID(ctx)))
				writeJSON(w, logger, ErrorResponse{Error: "Invalid or expired token", Code: "UNAUTHORIZED"}, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}
