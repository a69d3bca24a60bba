package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nikhil/saasbase/internal/action"
	"github.com/nikhil/saasbase/internal/logger"
	usermodels "github.com/nikhil/saasbase/internal/models/users"
)

type ContextKey string

const UserContextKey ContextKey = "currentUser"

// CurrentUser returns the user stored by RequireUser.
func CurrentUser(ctx context.Context) (*usermodels.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*usermodels.User)
	return user, ok && user != nil
}

func WithCurrentUser(ctx context.Context, user *usermodels.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// RequireUser resolves the session and rejects anonymous requests with 401.
func RequireUser(resolver action.Resolver, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				log.WithContext(r.Context()).Error("Failed to resolve session", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if user == nil {
				writeError(w, http.StatusUnauthorized, action.ErrUnauthenticated.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCurrentUser(r.Context(), user)))
		})
	}
}

func ResponseWrapperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
