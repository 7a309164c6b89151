package auth

import (
	"context"
	"net/http"

	"github.com/ssugameworks/invest-system-backend/internal/api"
)

type ctxKey int

const (
	tokenKey ctxKey = iota
	claimsKey
)

// RequireUser rejects requests without a validly signed user bearer token.
// Whether the token is still the user's current session is checked by the
// handlers against the store.
func RequireUser(tokens *Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := api.BearerToken(r)
			if err != nil {
				api.WriteKindError(w, err.Error(), "Unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := tokens.VerifyRole(token, RoleUser)
			if err != nil {
				api.WriteKindError(w, "invalid token", "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), tokenKey, token)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Token returns the bearer token accepted by RequireUser.
func Token(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey).(string)
	return tok
}

// ClaimsFrom returns the claims accepted by RequireUser, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}
