// Package auth extracts the acting account from a bearer token.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "sigil/pkg/domain"
	"sigil/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns the account it
// authorizes.
type TokenValidator interface {
	ValidateAccount(tokenString string) (id.AccountID, error)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAccount rejects requests without a valid bearer token and places
// the authenticated account in the request context.
func RequireAccount(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
				return
			}

			account, err := validator.ValidateAccount(token)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx := requestcontext.WithCaller(r.Context(), account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
