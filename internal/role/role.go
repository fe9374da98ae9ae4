// AngelaMos | 2026
// role.go

package role

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// Role is an entitlement level. The zero value None means "no role" and
// never satisfies any requirement.
type Role string

const (
	None    Role = ""
	Basic   Role = "E-BASIC"
	Tool    Role = "E-TOOL"
	Master  Role = "E-MASTER"
	Admin   Role = "ADMIN"
	Default      = Basic
)

var ErrUnknownRole = errors.New("unknown role")

// All lists the known roles in ascending rank.
var All = []Role{Basic, Tool, Master, Admin}

func Rank(r Role) int {
	switch r {
	case Basic:
		return 1
	case Tool:
		return 2
	case Master:
		return 3
	case Admin:
		return 4
	default:
		return 0
	}
}

// Satisfies reports whether actual grants at least the access of required.
// Unknown or empty actual roles never satisfy anything.
func Satisfies(actual, required Role) bool {
	if !actual.Valid() {
		return false
	}
	return Rank(actual) >= Rank(required)
}

func IsAdmin(r Role) bool {
	return r == Admin
}

func Parse(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return None, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	return Rank(r) > 0
}

func (r Role) String() string {
	return string(r)
}

func (r *Role) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		return fmt.Errorf("scan role: %w: null", ErrUnknownRole)
	default:
		return fmt.Errorf("scan role: unsupported type %T", src)
	}

	parsed, err := Parse(s)
	if err != nil {
		return fmt.Errorf("scan role: %w", err)
	}
	*r = parsed
	return nil
}

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("store role: %w: %q", ErrUnknownRole, string(r))
	}
	return string(r), nil
}
