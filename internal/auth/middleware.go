package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "auth_identity"

// IdentityFromContext extracts the verified identity from request context.
// The zero Identity is returned when the request was not authenticated.
func IdentityFromContext(ctx context.Context) Identity {
	ident, _ := ctx.Value(identityKey).(Identity)
	return ident
}

// Authenticate returns middleware that validates identity tokens and stores
// the verified identity on the request context.
func Authenticate(mgr *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, err := extractAndValidate(r, mgr)
			if err != nil {
				// Marshal rather than concatenate: jwt parse errors may carry
				// quotes from the offending token segment.
				body, _ := json.Marshal(map[string]string{
					"code":    "UNAUTHORIZED",
					"message": err.Error(),
				})
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write(body)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAndValidate(r *http.Request, mgr *Manager) (Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return Identity{}, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return Identity{}, fmt.Errorf("invalid Authorization format")
	}

	return mgr.Validate(parts[1])
}
