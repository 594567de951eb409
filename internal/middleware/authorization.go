package middleware

import (
	"net/http"
	"slices"

	"marketplace/internal/domain"

	"go.uber.org/zap"
)

const msgForbidden = "insufficient permissions"

func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, domain.RoleAdmin)
}

// RequireSeller admits sellers and admins
func RequireSeller(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, domain.RoleSeller, domain.RoleAdmin)
}

// RequireRole answers 403 unless the principal in the request context holds
// one of roles. It must run after AuthMiddleware.
func RequireRole(logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r.Context())
			if !ok {
				logger.Warn("Role check without principal", zap.String("path", r.URL.Path))
				RespondWithError(w, http.StatusForbidden, msgForbidden)
				return
			}

			if !slices.Contains(roles, principal.Role) {
				logger.Warn("Role not permitted",
					zap.String("user_id", principal.ID),
					zap.String("role", principal.Role),
					zap.Strings("allowed_roles", roles),
					zap.String("path", r.URL.Path),
				)
				RespondWithError(w, http.StatusForbidden, msgForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
