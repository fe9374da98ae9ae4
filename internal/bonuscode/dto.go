// AngelaMos | 2026
// dto.go

package bonuscode

import (
	"time"
)

type CreateRequest struct {
	Role         string `json:"role"          validate:"required,oneof=E-BASIC E-TOOL E-MASTER ADMIN"`
	DurationDays int    `json:"duration_days" validate:"required,gte=1,lte=3650"`
	Uses         int    `json:"uses"          validate:"required,gte=1,lte=100000"`
}

type CodeResponse struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Role         string    `json:"role"`
	DurationDays int       `json:"duration_days"`
	UsesLeft     int       `json:"uses_left"`
	CreatedAt    time.Time `json:"created_at"`
}

func ToCodeResponse(c *Code) CodeResponse {
	return CodeResponse{
		ID:           c.ID,
		Code:         c.Code,
		Role:         c.Role.String(),
		DurationDays: c.DurationDays,
		UsesLeft:     c.UsesLeft,
		CreatedAt:    c.CreatedAt,
	}
}

func ToCodeResponseList(codes []Code) []CodeResponse {
	out := make([]CodeResponse, 0, len(codes))
	for i := range codes {
		out = append(out, ToCodeResponse(&codes[i]))
	}
	return out
}
