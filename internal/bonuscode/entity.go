// AngelaMos | 2026
// entity.go

package bonuscode

import (
	"errors"
	"strings"
	"time"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
)

const (
	CodeLength          = 8
	maxGenerateAttempts = 5
)

var ErrCodeCollision = errors.New("could not generate a unique code")

// Code is a finite-use token redeemable for a time-limited role grant.
type Code struct {
	ID           string    `db:"id"`
	Code         string    `db:"code"`
	Role         role.Role `db:"role"`
	DurationDays int       `db:"duration_days"`
	UsesLeft     int       `db:"uses_left"`
	CreatedAt    time.Time `db:"created_at"`
}

func (c *Code) Exhausted() bool {
	return c.UsesLeft <= 0
}

func (c *Code) Duration() time.Duration {
	return time.Duration(c.DurationDays) * 24 * time.Hour
}

// Normalize trims and upper-cases user input so lookups are case-insensitive.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
