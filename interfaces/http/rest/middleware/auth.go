package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/pkg/auth"
	"github.com/heirloom-app/heirloom/pkg/common"
)

// Authenticate validates the bearer token and installs the caller's user
// context. Requests are rate limited per client IP before validation so
// credential stuffing cannot burn CPU on signature checks.
func Authenticate(tokens *auth.TokenManager, limiter *auth.TokenBucketLimiter, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)

			allowed, err := limiter.Allow(r.Context(), clientIP)
			if err != nil {
				logger.Error("Rate limiter error", zap.Error(err))
				common.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				return
			}
			if !allowed {
				common.RespondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
				return
			}

			token := extractToken(r)
			if token == "" {
				common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authentication token")
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				logger.Warn("Invalid token",
					zap.Error(err),
					zap.String("ip", clientIP),
					zap.String("path", r.URL.Path),
				)
				if err == auth.ErrExpiredToken {
					common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "token has expired")
				} else {
					common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
				}
				return
			}

			userCtx := &auth.UserContext{
				Username: claims.Username,
				SpaceID:  claims.SpaceID,
			}

			ctx := auth.SetUserInContext(r.Context(), userCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken pulls the JWT from the Authorization header.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return authHeader
}

// getClientIP extracts the client IP address
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
