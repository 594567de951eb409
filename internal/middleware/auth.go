package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"marketplace/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const (
	PrincipalKey contextKey = "principal"
)

// errUnauthenticated carries the message returned with a 401
type errUnauthenticated struct {
	message string
}

func (e *errUnauthenticated) Error() string { return e.message }

func unauthenticated(message string) error {
	return &errUnauthenticated{message: message}
}

// authenticate extracts the principal from the Bearer token of r
func authenticate(r *http.Request, jwtSecret string) (domain.Principal, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return domain.Principal{}, unauthenticated("missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return domain.Principal{}, unauthenticated("invalid authorization header format")
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, unauthenticated("token expired")
		}
		return domain.Principal{}, unauthenticated("invalid token")
	}
	if !token.Valid {
		return domain.Principal{}, unauthenticated("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Principal{}, unauthenticated("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return domain.Principal{}, unauthenticated("invalid token claims")
	}

	role, ok := claims["role"].(string)
	if !ok || !isKnownRole(role) {
		return domain.Principal{}, unauthenticated("invalid token claims")
	}

	return domain.Principal{ID: userID, Role: role}, nil
}

// AuthMiddleware validates JWT tokens and stores the caller as a
// domain.Principal in the request context
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authenticate(r, jwtSecret)
			if err != nil {
				logger.Debug("Authentication failed",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				RespondWithError(w, http.StatusUnauthorized, err.Error())
				return
			}

			logger.Debug("User authenticated",
				zap.String("user_id", principal.ID),
				zap.String("role", principal.Role),
			)

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// IdentifyMiddleware attaches the principal when the request carries a
// valid token and passes anonymous or invalid requests through unchanged.
// Routes that need a caller still use AuthMiddleware.
func IdentifyMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal, err := authenticate(r, jwtSecret); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isKnownRole(role string) bool {
	switch role {
	case domain.RoleBuyer, domain.RoleSeller, domain.RoleAdmin:
		return true
	}
	return false
}

// WithPrincipal returns a copy of ctx carrying principal
func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetPrincipal extracts the authenticated caller from ctx
func GetPrincipal(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(PrincipalKey).(domain.Principal)
	return principal, ok
}
