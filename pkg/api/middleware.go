package api

import (
	"context"
	"net/http"

	"github.com/platinummonkey/askdata/pkg/auth"
	"github.com/platinummonkey/askdata/pkg/httputil"
	"github.com/platinummonkey/askdata/pkg/observability"
)

type contextKey string

const userContextKey contextKey = "api_user"

// UserFromContext returns the authenticated user placed in the request
// context by the auth middleware.
func UserFromContext(ctx context.Context) (auth.User, bool) {
	user, ok := ctx.Value(userContextKey).(auth.User)
	return user, ok
}

// requireUser authenticates the request and stores the user in context.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r.Context(), r)
		if err != nil {
			s.logger.WithError(err).Debug("Request rejected by auth")
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = observability.WithUserID(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
