package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bracketops/matchday/models"
	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const principalContextKey contextKey = "principal"

const (
	jwtClaimUserID   = "user_id"
	jwtClaimPlayerID = "player_id"
	jwtClaimRole     = "role"
)

var ErrNoPrincipal = errors.New("no authenticated principal in context")

// Authenticate validates the bearer token and stores the resulting principal
// in the request context. Token issuance belongs to the identity service;
// this side only verifies.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			principal, err := principalFromClaims(claims)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole guards a route group behind a role. Admins pass everywhere.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := PrincipalFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !principal.Has(role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func PrincipalFromContext(ctx context.Context) (models.Principal, error) {
	principal, ok := ctx.Value(principalContextKey).(models.Principal)
	if !ok {
		return models.Principal{}, ErrNoPrincipal
	}
	return principal, nil
}

func principalFromClaims(claims jwt.MapClaims) (models.Principal, error) {
	userID, err := intClaim(claims, jwtClaimUserID)
	if err != nil {
		return models.Principal{}, err
	}
	if userID <= 0 {
		return models.Principal{}, fmt.Errorf("invalid user ID in '%s' claim: %d", jwtClaimUserID, userID)
	}

	roleStr, ok := claims[jwtClaimRole].(string)
	if !ok {
		return models.Principal{}, fmt.Errorf("missing or invalid '%s' claim", jwtClaimRole)
	}
	role := models.Role(roleStr)
	switch role {
	case models.RoleAdmin, models.RoleOrganizer, models.RolePlayer:
	default:
		return models.Principal{}, fmt.Errorf("invalid role value in claim: %q", roleStr)
	}

	principal := models.Principal{UserID: userID, Role: role}
	if _, present := claims[jwtClaimPlayerID]; present {
		playerID, err := intClaim(claims, jwtClaimPlayerID)
		if err != nil {
			return models.Principal{}, err
		}
		principal.PlayerID = &playerID
	}
	return principal, nil
}

func intClaim(claims jwt.MapClaims, name string) (int, error) {
	raw, ok := claims[name]
	if !ok {
		return 0, fmt.Errorf("missing '%s' claim in token", name)
	}
	value, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("invalid type for '%s' claim: expected number, got %T", name, raw)
	}
	if value != float64(int(value)) {
		return 0, fmt.Errorf("'%s' claim is not an integer: %f", name, value)
	}
	return int(value), nil
}
