// AngelaMos | 2026
// entity.go

package user

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
)

type Status string

const (
	StatusActive Status = "active"
	StatusBanned Status = "banned"
)

var ErrUnknownStatus = errors.New("unknown status")

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusBanned
}

func (s *Status) Scan(src any) error {
	var v string
	switch t := src.(type) {
	case string:
		v = t
	case []byte:
		v = string(t)
	default:
		return fmt.Errorf("scan status: unsupported type %T", src)
	}

	parsed, err := ParseStatus(v)
	if err != nil {
		return fmt.Errorf("scan status: %w", err)
	}
	*s = parsed
	return nil
}

func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("store status: %w: %q", ErrUnknownStatus, string(s))
	}
	return string(s), nil
}

// Record is the persisted per-user entitlement and profile document. ID is
// the identity provider uid.
type Record struct {
	ID                string         `db:"id"`
	Email             string         `db:"email"`
	DisplayName       string         `db:"display_name"`
	PhotoURL          *string        `db:"photo_url"`
	Role              role.Role      `db:"role"`
	Status            Status         `db:"status"`
	RoleExpiresAt     *time.Time     `db:"role_expires_at"`
	SeenNotifications pq.StringArray `db:"seen_notifications"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r *Record) IsBanned() bool {
	return r.Status == StatusBanned
}

func (r *Record) IsAdmin() bool {
	return role.IsAdmin(r.Role)
}

// RoleExpired reports whether the time-limited grant lapsed strictly before
// now. Permanent grants (nil expiration) never expire.
func (r *Record) RoleExpired(now time.Time) bool {
	return r.RoleExpiresAt != nil && now.After(*r.RoleExpiresAt)
}

// EntitlementUpdate is the privileged overwrite applied from the back-office.
// A nil RoleExpiresAt makes the grant permanent.
type EntitlementUpdate struct {
	Role          role.Role
	Status        Status
	RoleExpiresAt *time.Time
}

func (u EntitlementUpdate) Validate() error {
	if !u.Role.Valid() {
		return fmt.Errorf("role %q: %w", u.Role, role.ErrUnknownRole)
	}
	if !u.Status.Valid() {
		return fmt.Errorf("status %q: %w", u.Status, ErrUnknownStatus)
	}
	return nil
}

// ProfileUpdate carries only the fields the user changed.
type ProfileUpdate struct {
	DisplayName *string
	Email       *string
	PhotoURL    *string
}

func (u ProfileUpdate) Empty() bool {
	return u.DisplayName == nil && u.Email == nil && u.PhotoURL == nil
}
