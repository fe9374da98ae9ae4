// AngelaMos | 2026
// dto.go

package auth

import (
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/guard"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
)

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

// RegisterRequest leaves email format and password strength to the
// identity provider so its error codes reach the client unchanged.
type RegisterRequest struct {
	Email       string `json:"email"        validate:"required,max=255"`
	Password    string `json:"password"     validate:"required,max=128"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

type GoogleCallbackRequest struct {
	Code  string `json:"code"  validate:"required"`
	State string `json:"state" validate:"required"`
}

type GoogleBeginResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type SessionResponse struct {
	session.Snapshot
	Screens []guard.ScreenDecision `json:"screens"`
}

type AuthResponse struct {
	Token   *SessionToken   `json:"token"`
	Session SessionResponse `json:"session"`
}

func ToSessionResponse(snap session.Snapshot) SessionResponse {
	return SessionResponse{
		Snapshot: snap,
		Screens:  guard.Evaluate(snap),
	}
}
