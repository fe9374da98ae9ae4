// AngelaMos | 2026
// entity.go

package notification

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
)

// AudienceAll targets every signed-in user.
const AudienceAll = "all"

var ErrUnknownAudience = errors.New("audience must be all, a role or an existing user id")

type Notification struct {
	ID        string    `db:"id"         json:"id"`
	Title     string    `db:"title"      json:"title"`
	Message   string    `db:"message"    json:"message"`
	Audience  string    `db:"audience"   json:"audience"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Audiences lists the audience values a user with uid and effective role r
// receives. A banned user (role.None) only gets broadcast and direct
// notifications.
func Audiences(uid string, r role.Role) []string {
	out := []string{AudienceAll}
	if r.Valid() {
		out = append(out, string(r))
	}
	if uid != "" {
		out = append(out, uid)
	}
	return out
}

func (n *Notification) Targets(uid string, r role.Role) bool {
	return slices.Contains(Audiences(uid, r), n.Audience)
}

// audienceKind reports whether aud is a broadcast or role audience, which
// need no lookup, as opposed to a user id.
func audienceKind(aud string) (normalized string, isUser bool) {
	aud = strings.TrimSpace(aud)
	if strings.EqualFold(aud, AudienceAll) {
		return AudienceAll, false
	}
	if r, err := role.Parse(aud); err == nil {
		return string(r), false
	}
	return aud, true
}
