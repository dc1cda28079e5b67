package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pawhaven/chatkit/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err, "expected token to sign")
	return signed
}

func TestFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("user token", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{
			"sub":  "user-42",
			"role": "USER",
			"exp":  exp,
		})

		sess, err := FromToken(tokenString)
		assert.NoError(t, err, "expected valid token to parse")
		assert.Equal(t, "user-42", sess.UserID, "expected subject claim as user id")
		assert.Equal(t, types.RoleUser, sess.Role, "expected USER role")
		assert.Equal(t, tokenString, sess.Token, "expected raw token to be carried")
	})

	t.Run("operator token", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{
			"sub":  "shelter-7",
			"role": "OPERATOR",
			"exp":  exp,
		})

		sess, err := FromToken(tokenString)
		assert.NoError(t, err, "expected valid token to parse")
		assert.Equal(t, types.RoleOperator, sess.Role, "expected OPERATOR role")
	})

	t.Run("expired token", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{
			"sub":  "user-42",
			"role": "USER",
			"exp":  time.Now().Add(-time.Hour).Unix(),
		})

		_, err := FromToken(tokenString)
		assert.Error(t, err, "expected expired token to be rejected")
	})

	t.Run("unknown role", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{
			"sub":  "user-42",
			"role": "ADMIN",
			"exp":  exp,
		})

		_, err := FromToken(tokenString)
		assert.Error(t, err, "expected unknown role to be rejected")
	})

	t.Run("missing subject", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{
			"role": "USER",
			"exp":  exp,
		})

		_, err := FromToken(tokenString)
		assert.Error(t, err, "expected missing subject to be rejected")
	})

	t.Run("not a token", func(t *testing.T) {
		_, err := FromToken("not-a-jwt")
		assert.Error(t, err, "expected garbage to be rejected")
	})
}
