package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"expanddesk/internal/httputil"
	"expanddesk/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for the authenticated user's claims
	ClaimsKey contextKey = "auth_claims"
)

// Claims is what the identity provider puts in the JWT and what every
// downstream layer needs: who the user is, their role and the snapshot
// fields captured onto participants and messages.
type Claims struct {
	UserID int64
	Role   model.Role
	Name   string
	Email  string
}

// User materializes the claims as a model.User for the service layer.
// CategoryIDs are not in the token; services that need them reload the user.
func (c *Claims) User() *model.User {
	return &model.User{
		ID:    c.UserID,
		Role:  c.Role,
		Name:  c.Name,
		Email: c.Email,
	}
}

// AuthMiddleware creates a middleware that validates JWT tokens.
// Checks the Authorization header first (mobile), then the access_token
// cookie (web), then the token query parameter (websocket handshakes,
// where browsers cannot set headers).
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				// Expected format: "Bearer <token>"
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					tokenString = parts[1]
				}
			}

			if tokenString == "" {
				cookie, err := r.Cookie("access_token")
				if err == nil && cookie.Value != "" {
					tokenString = cookie.Value
				}
			}

			if tokenString == "" {
				tokenString = r.URL.Query().Get("token")
			}

			if tokenString == "" {
				httputil.WriteUnauthorized(w, "Missing authentication token")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})

			if err != nil {
				if strings.Contains(err.Error(), "expired") {
					httputil.WriteUnauthorized(w, "Access token has expired")
					return
				}
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			mapClaims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			claims, ok := parseClaims(mapClaims)
			if !ok {
				httputil.WriteUnauthorized(w, "Invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseClaims(m jwt.MapClaims) (*Claims, bool) {
	userIDFloat, ok := m["user_id"].(float64)
	if !ok {
		return nil, false
	}
	roleStr, ok := m["role"].(string)
	if !ok {
		return nil, false
	}
	role := model.Role(roleStr)
	if !role.Valid() {
		return nil, false
	}

	// Name and email are optional in older tokens
	name, _ := m["name"].(string)
	email, _ := m["email"].(string)

	return &Claims{
		UserID: int64(userIDFloat),
		Role:   role,
		Name:   name,
		Email:  email,
	}, true
}

// GetClaimsFromContext extracts the authenticated claims from the request
// context. Returns nil and false when the request was not authenticated.
func GetClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// RequireStaff rejects requests from non-staff roles. Must run after
// AuthMiddleware.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaimsFromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "Missing authentication")
			return
		}
		if !claims.Role.IsStaff() {
			httputil.WriteForbidden(w, "Staff role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
