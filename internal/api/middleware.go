/**
 * @description
 * This file contains custom middleware for the HTTP router. Middlewares are used
 * to process requests before they reach the final handler, perfect for tasks like
 * authentication and adding context to a request.
 *
 * Identity issuance lives in an external collaborator; this service only
 * verifies the HS256 token and resolves the caller to {id, role, restaurant_id}.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/askida/meal-service/internal/domain"
)

// identityContextKey is a custom type for the context key to avoid collisions.
type identityContextKey string

const callerIdentityKey identityContextKey = "callerIdentity"

// AuthMiddleware creates a middleware that validates HS256 JWT tokens issued
// by the identity collaborator and places the resolved caller in the context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			identity, err := identityFromClaims(claims)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), callerIdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// identityFromClaims maps token claims onto the caller identity. Numeric
// claims arrive as float64 from encoding/json.
func identityFromClaims(claims jwt.MapClaims) (domain.Identity, error) {
	var identity domain.Identity

	rawID, ok := claims["sub"]
	if !ok {
		rawID, ok = claims["id"]
	}
	if !ok {
		return identity, fmt.Errorf("user id not found in token")
	}
	userID, err := claimToInt64(rawID)
	if err != nil || userID < 1 {
		return identity, fmt.Errorf("user id claim is not a valid identifier")
	}
	identity.UserID = userID

	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return identity, fmt.Errorf("role not found in token")
	}
	identity.Role = role

	if rawRestaurant, ok := claims["restaurant_id"]; ok && rawRestaurant != nil {
		restaurantID, err := claimToInt64(rawRestaurant)
		if err != nil || restaurantID < 1 {
			return identity, fmt.Errorf("restaurant id claim is not a valid identifier")
		}
		identity.RestaurantID = &restaurantID
	}
	return identity, nil
}

func claimToInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unsupported claim type %T", value)
	}
}

// RequireRole guards a route group: the caller's role must be one of the
// allowed roles or the request is rejected with 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentity(r.Context())
			if !ok {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[identity.Role]; !ok {
				http.Error(w, "Insufficient role for this operation", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity extracts the resolved caller identity from the request context.
func GetIdentity(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(callerIdentityKey).(domain.Identity)
	return identity, ok
}
