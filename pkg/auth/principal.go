package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/wholesale-backend/pkg/enums"
)

// Principal is the authenticated caller as seen by services.
type Principal struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == enums.MemberRoleAdmin
}

// Valid reports whether the principal carries an identity and a known role.
func (p Principal) Valid() bool {
	return p.UserID != uuid.Nil && p.Role.IsValid()
}
