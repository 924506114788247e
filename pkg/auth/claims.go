package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Role scopes what an API client may do.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleReader Role = "reader"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleReader:
		return true
	}
	return false
}

// ParseRole normalizes a role name. The result may be invalid.
func ParseRole(value string) Role {
	return Role(strings.ToLower(strings.TrimSpace(value)))
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	Subject string
	Role    Role
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued to API clients.
type AccessTokenClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}
