// AngelaMos | 2026
// dto.go

package user

import (
	"time"
)

type UpdateEntitlementRequest struct {
	Role          string     `json:"role"            validate:"required,oneof=E-BASIC E-TOOL E-MASTER ADMIN"`
	Status        string     `json:"status"          validate:"required,oneof=active banned"`
	RoleExpiresAt *time.Time `json:"role_expires_at"`
}

type UserResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	PhotoURL      *string    `json:"photo_url"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	RoleExpiresAt *time.Time `json:"role_expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ListUsersParams struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Search   string `json:"search"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

func (p *ListUsersParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

func (p *ListUsersParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

type Stats struct {
	Total  int            `json:"total"`
	Banned int            `json:"banned"`
	ByRole map[string]int `json:"by_role"`
}

func ToUserResponse(r *Record) UserResponse {
	return UserResponse{
		ID:            r.ID,
		Email:         r.Email,
		DisplayName:   r.DisplayName,
		PhotoURL:      r.PhotoURL,
		Role:          r.Role.String(),
		Status:        string(r.Status),
		RoleExpiresAt: r.RoleExpiresAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func ToUserResponseList(records []Record) []UserResponse {
	responses := make([]UserResponse, 0, len(records))
	for i := range records {
		responses = append(responses, ToUserResponse(&records[i]))
	}
	return responses
}
