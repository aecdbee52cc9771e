package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/pkg/auth"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

// DevUserHeader carries the caller id when no JWT secret is configured.
const DevUserHeader = "X-User-ID"

// AnonymousUser is the caller id used in development when the request
// names no user.
const AnonymousUser = "anonymous"

// Authenticate validates the bearer token and stores the caller in the
// request context. With a nil validator (no secret configured) the
// X-User-ID header is trusted instead.
func Authenticate(validator *auth.JWTValidator, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var user *auth.UserContext

			if validator == nil {
				userID := strings.TrimSpace(r.Header.Get(DevUserHeader))
				if userID == "" {
					userID = AnonymousUser
				}
				user = &auth.UserContext{UserID: userID}
			} else {
				token := extractToken(r)
				if token == "" {
					errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError("missing authentication token"))
					return
				}
				claims, err := validator.ValidateToken(token)
				if err != nil {
					logger.Warn("Invalid token",
						zap.Error(err),
						zap.String("path", r.URL.Path),
					)
					errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError(unauthorizedMessage(err)))
					return
				}
				user = &auth.UserContext{UserID: claims.UserID(), Email: claims.Email, Roles: claims.Roles}
			}

			r = r.WithContext(auth.SetUserInContext(r.Context(), user))
			logger.Debug("Request authenticated",
				zap.String("user_id", user.UserID),
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "token has expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid token signature"
	default:
		return "invalid token"
	}
}

// extractToken reads a bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
