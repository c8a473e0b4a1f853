package auth

import (
	"context"
	"skill-chat/domain"
	"skill-chat/errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	secret = "test-secret-with-enough-entropy"
	issuer = "skill-chat-identity"
)

func TestJWTValidator(t *testing.T) {
	ctx := context.Background()
	validator := NewJWTValidator(secret, issuer)

	t.Run("should resolve a valid token", func(t *testing.T) {
		req := require.New(t)
		token, err := GenerateToken(secret, issuer, "alice", time.Hour)
		req.NoError(err)

		user, err := validator.Validate(ctx, "Bearer "+token)

		req.NoError(err)
		req.Equal(domain.UserID("alice"), user)
	})

	t.Run("should reject a missing token", func(t *testing.T) {
		req := require.New(t)
		_, err := validator.Validate(ctx, "  ")
		req.ErrorIs(err, errors.ErrUnauthenticated)
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		req := require.New(t)
		token, err := GenerateToken(secret, issuer, "alice", -time.Minute)
		req.NoError(err)

		_, err = validator.Validate(ctx, token)

		req.ErrorIs(err, errors.ErrInvalidToken)
		req.Equal(errors.KindUnauthenticated, errors.KindOf(err))
	})

	t.Run("should reject a foreign signature or issuer", func(t *testing.T) {
		req := require.New(t)
		forged, err := GenerateToken("another-secret", issuer, "alice", time.Hour)
		req.NoError(err)
		_, err = validator.Validate(ctx, forged)
		req.ErrorIs(err, errors.ErrInvalidToken)

		foreign, err := GenerateToken(secret, "someone-else", "alice", time.Hour)
		req.NoError(err)
		_, err = validator.Validate(ctx, foreign)
		req.ErrorIs(err, errors.ErrInvalidToken)
	})

	t.Run("should reject identities that break conversation keys", func(t *testing.T) {
		req := require.New(t)
		token, err := GenerateToken(secret, issuer, "ali_ce", time.Hour)
		req.NoError(err)

		_, err = validator.Validate(ctx, token)

		req.ErrorIs(err, errors.ErrInvalidToken)
	})

	t.Run("should reject other signing methods", func(t *testing.T) {
		req := require.New(t)
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "alice"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		req.NoError(err)

		_, err = validator.Validate(ctx, token)

		req.ErrorIs(err, errors.ErrInvalidToken)
	})
}

func TestUserIDContext(t *testing.T) {
	req := require.New(t)

	_, ok := UserIDFrom(context.Background())
	req.False(ok)

	user, ok := UserIDFrom(WithUserID(context.Background(), "bob"))
	req.True(ok)
	req.Equal(domain.UserID("bob"), user)
}
