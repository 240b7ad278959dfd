package enums

import (
	"fmt"
	"strings"
)

// MemberRole is the marketplace role carried in the provider-issued token.
type MemberRole string

const (
	MemberRoleAdmin      MemberRole = "admin"
	MemberRoleWholesaler MemberRole = "wholesaler"
	MemberRoleRetailer   MemberRole = "retailer"
)

var validMemberRoles = []MemberRole{
	MemberRoleAdmin,
	MemberRoleWholesaler,
	MemberRoleRetailer,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMemberRole converts raw input into a MemberRole. Matching ignores case.
func ParseMemberRole(value string) (MemberRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validMemberRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
