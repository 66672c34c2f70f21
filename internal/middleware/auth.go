package middleware

import (
	"context"
	"net/http"
	"strings"

	"notification-service/pkg/jwtutil"
	"notification-service/pkg/response"
)

type contextKey string

const (
	ContextUserID   contextKey = "userID"
	ContextUsername contextKey = "username"
)

type AuthMiddleware struct {
	verifier *jwtutil.Verifier
}

func NewAuthMiddleware(verifier *jwtutil.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// ExtractToken pulls the bearer token from the Authorization header, or
// from the "token" query parameter for websocket handshakes where browsers
// cannot set headers.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
	}
	return r.URL.Query().Get("token")
}

// Middleware verifies the caller's token and stores the subject user id in
// the request context.
func (am *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized, "Missing token")
			return
		}

		claims, err := am.verifier.ParseAndValidate(token)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ContextUserID, claims.Subject())
		if claims.Username != "" {
			ctx = context.WithValue(ctx, ContextUsername, claims.Username)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the authenticated user id stored by Middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ContextUserID).(string)
	return id
}
