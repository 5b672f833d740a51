package middleware

import (
	"log/slog"
	"net/http"

	"pms/internal/transport/http/api"
)

// PermissionStore resolves role grants. Roles come from the token, so the check is static.
type PermissionStore interface {
	Allows(roleName, permission string) bool
}

// RequirePermission rejects anonymous callers with 401 and callers whose role lacks
// permission with 403. The missing permission is named in the error details.
func RequirePermission(permission string, store PermissionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())
			user, ok := GetUser(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="pms"`)
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
				return
			}
			if !store.Allows(user.RoleName, permission) {
				slog.Warn("permission denied", "userId", user.UserID, "role", user.RoleName, "permission", permission, "path", r.URL.Path, "requestId", requestID)
				api.FailWithDetails(w, http.StatusForbidden, "forbidden", "insufficient permissions", map[string]string{"permission": permission}, requestID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
