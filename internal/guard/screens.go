// AngelaMos | 2026
// screens.go

package guard

import (
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
)

type Screen struct {
	Path     string    `json:"path"`
	Required role.Role `json:"required_role,omitempty"`
}

// Screens lists the gated client routes. Public routes are not listed.
var Screens = []Screen{
	{Path: "/tools"},
	{Path: "/budgets"},
	{Path: "/profile"},
	{Path: "/courses", Required: role.Master},
	{Path: "/admin", Required: role.Admin},
}

type ScreenDecision struct {
	Screen
	Decision
}

// Evaluate decides every gated screen against snap so the client can hide
// or redirect without another round trip.
func Evaluate(snap session.Snapshot) []ScreenDecision {
	out := make([]ScreenDecision, 0, len(Screens))
	for _, sc := range Screens {
		out = append(out, ScreenDecision{
			Screen:   sc,
			Decision: Decide(FromSnapshot(snap, sc.Required)),
		})
	}
	return out
}
