// AngelaMos | 2026
// dto.go

package profile

import (
	"time"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/entitlement"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

// UpdateRequest carries only the fields the user changed. Format checks on
// email and password are left to the identity provider.
type UpdateRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=100"`
	Email       *string `json:"email"        validate:"omitempty,max=255"`
	Password    *string `json:"password"     validate:"omitempty,max=128"`
}

func (r UpdateRequest) Changes() session.ProfileChanges {
	return session.ProfileChanges{
		DisplayName: r.DisplayName,
		Email:       r.Email,
		Password:    r.Password,
	}
}

type RedeemRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type RedeemResponse struct {
	Role         string           `json:"role"`
	DurationDays int              `json:"duration_days"`
	ExpiresAt    time.Time        `json:"expires_at"`
	Session      session.Snapshot `json:"session"`
}

type MeResponse struct {
	User    user.UserResponse `json:"user"`
	Session session.Snapshot  `json:"session"`
}

func ToRedeemResponse(g *entitlement.Grant, snap session.Snapshot) RedeemResponse {
	return RedeemResponse{
		Role:         g.Role.String(),
		DurationDays: g.DurationDays,
		ExpiresAt:    g.ExpiresAt,
		Session:      snap,
	}
}
