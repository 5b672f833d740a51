package middleware

import (
	"context"
	"net/http"
	"strings"

	"pms/internal/domain/auth"
	"pms/internal/transport/http/api"
)

// Auth attaches the bearer token's actor to the request context. Requests without an
// Authorization header pass through anonymous and RequirePermission decides; a header
// that is malformed or carries a bad token is rejected here.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				rejectToken(w, r, "authorization header must be a bearer token")
				return
			}
			claims, err := auth.ParseToken(secret, strings.TrimSpace(token))
			if err != nil {
				rejectToken(w, r, "invalid or expired token")
				return
			}
			ctx := WithUser(r.Context(), auth.UserContext{
				UserID:   claims.UserID,
				RoleName: claims.RoleName,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectToken(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="pms", error="invalid_token"`)
	api.Fail(w, http.StatusUnauthorized, "invalid_token", message, GetRequestID(r.Context()))
}

func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}
