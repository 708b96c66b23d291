package security_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcore/internal/security"
)

func TestTokenService(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)

	t.Run("RoundTrip", func(t *testing.T) {
		tok, err := svc.CreateForUser("user-1")
		require.NoError(t, err)

		id, err := svc.UserID(tok)
		require.NoError(t, err)
		assert.Equal(t, "user-1", id)
	})

	t.Run("Expired", func(t *testing.T) {
		tok, err := svc.CreateWithTTL("user-1", -time.Minute)
		require.NoError(t, err)

		_, err = svc.UserID(tok)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := security.NewTokenService("other", time.Hour)
		tok, err := other.CreateForUser("user-1")
		require.NoError(t, err)

		_, err = svc.UserID(tok)
		assert.Error(t, err)
	})

	t.Run("EmptySubject", func(t *testing.T) {
		tok, err := svc.CreateForUser("")
		require.NoError(t, err)

		_, err = svc.UserID(tok)
		assert.ErrorIs(t, err, security.ErrInvalidSubject)
	})

	t.Run("NoneAlgorithmRejected", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"})
		s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.UserID(s)
		assert.Error(t, err)
	})
}
