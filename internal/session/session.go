package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pawhaven/chatkit/internal/types"
)

const (
	userIdClaim = "sub"
	roleClaim   = "role"
	expClaim    = "exp"
)

// FromToken builds a Session from a bearer token issued by the auth
// collaborator. The signature was verified at issuance; here the claims
// are only read, so the token is parsed unverified.
func FromToken(tokenString string) (types.Session, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return types.Session{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Session{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return types.Session{}, fmt.Errorf("invalid subject claim")
	}

	roleStr, ok := claims[roleClaim].(string)
	if !ok {
		return types.Session{}, fmt.Errorf("invalid role claim")
	}

	var role types.Role
	switch types.Role(roleStr) {
	case types.RoleUser:
		role = types.RoleUser
	case types.RoleOperator:
		role = types.RoleOperator
	default:
		return types.Session{}, fmt.Errorf("unknown role %q", roleStr)
	}

	if exp, ok := claims[expClaim].(float64); ok {
		if time.Now().After(time.Unix(int64(exp), 0)) {
			return types.Session{}, fmt.Errorf("token expired")
		}
	}

	return types.Session{
		UserID: userId,
		Role:   role,
		Token:  tokenString,
	}, nil
}
