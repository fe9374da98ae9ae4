// AngelaMos | 2026
// middleware.go

package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/middleware"
)

type contextKey struct{}

// TokenVerifier turns a bearer token into a session id.
type TokenVerifier interface {
	VerifySessionToken(ctx context.Context, token string) (string, error)
}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// Authenticator loads the session named by the bearer token. Requests
// without a valid token are rejected; the session itself may still be
// unauthenticated, which the guard decides about.
func Authenticator(
	registry *Registry,
	tokens TokenVerifier,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := middleware.ExtractToken(r)
			if raw == "" {
				core.Unauthorized(w, "missing session token")
				return
			}

			ctx := r.Context()

			sid, err := tokens.VerifySessionToken(ctx, raw)
			if err != nil {
				switch {
				case errors.Is(err, core.ErrTokenExpired):
					core.JSONError(w, core.TokenExpiredError())
				default:
					core.JSONError(w, core.TokenInvalidError())
				}
				return
			}

			s, err := registry.Get(ctx, sid)
			if err != nil {
				switch {
				case errors.Is(err, core.ErrNotAuthenticated):
					core.JSONError(w, core.TokenRevokedError())
				case errors.Is(err, core.ErrStorageUnavailable):
					core.JSONError(w, core.StorageUnavailableError())
				default:
					core.InternalServerError(w, err)
				}
				return
			}

			s.EnsureFresh(ctx)

			ctx = WithSession(ctx, s)
			ctx = middleware.WithSessionID(ctx, sid)
			if cur := s.Snapshot().CurrentUser; cur != nil {
				ctx = middleware.WithUserID(ctx, cur.UID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
