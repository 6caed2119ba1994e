package middleware

import (
	"context"
	"net/http"
	"strings"

	"designlab/handlers/auth"

	"github.com/go-chi/render"
)

type contextKey string

const ClaimsContextKey = contextKey("claims")

// TokenParser verifies a bearer token.
type TokenParser interface {
	ParseJWT(token string) (*auth.AppClaims, error)
}

// AuthJWT rejects requests without a valid bearer token and stores the claims in the
// request context. GET requests may pass the token as ?token= so previews work in <img> tags.
func AuthJWT(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, msg := bearerToken(r)
			if msg != "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": msg})
				return
			}

			claims, err := parser.ParseJWT(tokenString)
			if err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Invalid token"})
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if t := r.URL.Query().Get("token"); t != "" && r.Method == http.MethodGet {
			return t, ""
		}
		return "", "Authorization header is required"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", "Authorization header format must be Bearer {token}"
	}
	return parts[1], ""
}

// CurrentUser returns the claims AuthJWT stored for this request.
func CurrentUser(ctx context.Context) (*auth.AppClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.AppClaims)
	return claims, ok && claims != nil
}

// WithClaims stores claims in ctx the way AuthJWT does.
func WithClaims(ctx context.Context, claims *auth.AppClaims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}
