package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func signToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestParseTokenValid(t *testing.T) {
	userID := uuid.New()
	exp := time.Now().Add(time.Hour)
	token := signToken(t, secret, jwt.MapClaims{
		"sub":   userID.String(),
		"email": "alice@example.com",
		"exp":   exp.Unix(),
	})

	claims, err := ParseToken(secret, token)

	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.WithinDuration(t, exp, claims.ExpiresAt, time.Second)
}

func TestParseTokenRejections(t *testing.T) {
	userID := uuid.New()

	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", signToken(t, []byte("other"), jwt.MapClaims{"sub": userID.String()})},
		{"expired", signToken(t, secret, jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{"missing subject", signToken(t, secret, jwt.MapClaims{"email": "alice@example.com"})},
		{"subject not a uuid", signToken(t, secret, jwt.MapClaims{"sub": "42"})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseToken(secret, tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestStoreSignInAndOut(t *testing.T) {
	userID := uuid.New()
	token := signToken(t, secret, jwt.MapClaims{
		"sub":   userID.String(),
		"email": "alice@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	store := NewStore(secret)

	_, err := store.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, store.Token())

	var changes []*Session
	store.OnChange(func(s *Session) { changes = append(changes, s) })

	session, err := store.SignIn(token)
	require.NoError(t, err)
	assert.Equal(t, userID, session.UserID)
	assert.Equal(t, "alice@example.com", session.Email)

	current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, session, current)
	assert.Equal(t, token, store.Token())

	store.SignOut()
	_, err = store.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, store.Token())

	require.Len(t, changes, 2)
	assert.NotNil(t, changes[0])
	assert.Nil(t, changes[1])
}

func TestStoreSignInRejectsBadToken(t *testing.T) {
	store := NewStore(secret)
	_, err := store.SignIn("bogus")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = store.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}
