package domain

import dErrors "golden/pkg/domain-errors"

// Role is the acting user's role. The set is closed: unknown values never
// reach the permission evaluator because ParseRole rejects them.
type Role string

const (
	RoleDataEntry  Role = "data_entry"
	RoleReviewer   Role = "reviewer"
	RoleCompliance Role = "compliance"
	RoleAdmin      Role = "admin"
)

var validRoles = map[Role]bool{
	RoleDataEntry:  true,
	RoleReviewer:   true,
	RoleCompliance: true,
	RoleAdmin:      true,
}

// Roles lists every supported role in a stable order.
func Roles() []Role {
	return []Role{RoleDataEntry, RoleReviewer, RoleCompliance, RoleAdmin}
}

// ParseRole constructs a Role from external input such as a token claim.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}
