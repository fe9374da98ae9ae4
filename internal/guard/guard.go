// AngelaMos | 2026
// guard.go

package guard

import (
	"net/http"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
)

const (
	LoginPath = "/login"
	HomePath  = "/"

	retryAfterSeconds = "1"
)

type Outcome string

const (
	OutcomeLoading       Outcome = "loading"
	OutcomeRedirectLogin Outcome = "redirect_login"
	OutcomeRedirectHome  Outcome = "redirect_home"
	OutcomeAllow         Outcome = "allow"
)

// Input is everything a decision depends on. Required is role.None for
// screens that only need a signed-in user.
type Input struct {
	Identity *identity.Identity
	Role     role.Role
	Required role.Role
	Loading  bool
}

type Decision struct {
	Outcome  Outcome `json:"outcome"`
	Redirect string  `json:"redirect,omitempty"`
}

// Decide is pure and must be re-run whenever identity, role or loading
// changes.
func Decide(in Input) Decision {
	switch {
	case in.Loading:
		return Decision{Outcome: OutcomeLoading}
	case in.Identity == nil:
		return Decision{Outcome: OutcomeRedirectLogin, Redirect: LoginPath}
	case in.Required != role.None && !role.Satisfies(in.Role, in.Required):
		return Decision{Outcome: OutcomeRedirectHome, Redirect: HomePath}
	default:
		return Decision{Outcome: OutcomeAllow}
	}
}

func FromSnapshot(snap session.Snapshot, required role.Role) Input {
	return Input{
		Identity: snap.CurrentUser,
		Role:     snap.Role,
		Required: required,
		Loading:  snap.Loading,
	}
}

// Require gates the wrapped routes on the request's session. It runs on
// every request, so role changes apply without re-login.
func Require(required role.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var snap session.Snapshot
			if s := session.FromContext(r.Context()); s != nil {
				snap = s.Snapshot()
			}

			d := Decide(FromSnapshot(snap, required))

			switch d.Outcome {
			case OutcomeAllow:
				next.ServeHTTP(w, r)
			case OutcomeLoading:
				w.Header().Set("Retry-After", retryAfterSeconds)
				core.ServiceUnavailable(w, "session is still loading")
			case OutcomeRedirectLogin:
				writeRedirect(w, http.StatusUnauthorized, "UNAUTHORIZED",
					"authentication required", d.Redirect)
			case OutcomeRedirectHome:
				writeRedirect(w, http.StatusForbidden, "FORBIDDEN",
					"insufficient role", d.Redirect)
			}
		})
	}
}

type redirectError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

func writeRedirect(w http.ResponseWriter, status int, code, message, to string) {
	core.JSON(w, status, map[string]any{
		"success": false,
		"error": redirectError{
			Code:     code,
			Message:  message,
			Redirect: to,
		},
	})
}
