package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"friendfeed/internal/auth"

	"github.com/gorilla/mux"
)

// contextKey 是用于在 context.Context 中存储值的自定义类型，以避免键冲突。
type contextKey string

const (
	// UserIDKey 是用于在上下文中存储用户ID的键。
	UserIDKey contextKey = "userID"
	// ClaimsKey 保存完整的 JWT 声明，登出时需要其中的 JTI。
	ClaimsKey contextKey = "claims"
)

// AuthMiddleware 验证 Bearer JWT（以及吊销列表），并把调用者信息放入请求上下文。
func AuthMiddleware(jwtKey string, blacklist auth.TokenBlacklist) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing authorization token")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || tokenString == "" {
				unauthorized(w, "authorization header must be Bearer {token}")
				return
			}

			claims, err := auth.ValidateToken(r.Context(), tokenString, jwtKey, blacklist)
			switch {
			case errors.Is(err, auth.ErrTokenRevoked):
				unauthorized(w, "token has been revoked")
				return
			case errors.Is(err, auth.ErrInvalidToken):
				unauthorized(w, "invalid token")
				return
			case err != nil:
				// 黑名单不可用
				log.Printf("Error validating token: %v", err)
				writeError(w, http.StatusServiceUnavailable, "authentication is temporarily unavailable", "UNAVAILABLE")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext 从上下文中获取用户ID。
func GetUserIDFromContext(ctx context.Context) (uint, bool) {
	userID, ok := ctx.Value(UserIDKey).(uint)
	return userID, ok && userID != 0
}

// GetClaimsFromContext 从上下文中获取 JWT 声明。
func GetClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message, "UNAUTHENTICATED")
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
