package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the only JWT claims shape this service issues or accepts.
// WorkspaceID is required on every token; the dialer has no
// cross-workspace surface.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	Role        string    `json:"role"`
	TokenType   TokenType `json:"token_type"`
}

// checkComplete rejects tokens missing a claim the engine keys requests
// on. Role is required on access tokens only.
func (c Claims) checkComplete(expected TokenType) error {
	if c.UserID == "" {
		return errors.New("user_id missing")
	}
	if c.WorkspaceID == "" {
		return errors.New("workspace_id missing")
	}
	if expected == TokenTypeAccess && c.Role == "" {
		return errors.New("role missing in access token")
	}
	return nil
}
