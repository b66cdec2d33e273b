package middleware

import (
	"context"
	"net/http"
	"strings"

	"finsync/internal/auth"
	"finsync/internal/models"
)

type contextKey string

const ownerKey contextKey = "owner"

func OwnerFromContext(ctx context.Context) (models.Owner, bool) {
	owner, ok := ctx.Value(ownerKey).(models.Owner)
	return owner, ok
}

// Auth validates the bearer token and places the resolved owner on the
// request context. A token carrying a family id acts on behalf of the family;
// otherwise the individual user owns the request.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			owner := models.UserOwner(claims.UserID)
			if claims.FamilyID != "" {
				owner = models.FamilyOwner(claims.FamilyID)
			}
			ctx := context.WithValue(r.Context(), ownerKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
