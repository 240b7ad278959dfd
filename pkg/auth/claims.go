package auth

import (
	"fmt"

	"github.com/angelmondragon/wholesale-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data needed to mint a token (tests and local tooling).
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// AccessTokenClaims is the token shape issued by the managed auth provider.
// The user id travels in "sub".
type AccessTokenClaims struct {
	Role enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject as a uuid.
func (c *AccessTokenClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject %q: %w", c.Subject, err)
	}
	return id, nil
}
