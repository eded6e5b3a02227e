package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	raw, err := NewAccessToken("s3cret", "u-42", time.Minute)
	require.NoError(t, err)

	sub, err := ParseSubject("s3cret", raw)
	require.NoError(t, err)
	assert.Equal(t, "u-42", sub)

	_, err = ParseSubject("other", raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseSubject_Rejects(t *testing.T) {
	expired, err := NewAccessToken("s3cret", "u-42", -time.Minute)
	require.NoError(t, err)
	_, err = ParseSubject("s3cret", expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "x"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = ParseSubject("s3cret", noSub)
	assert.ErrorIs(t, err, ErrInvalidToken)

	legacy, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u-7"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	sub, err := ParseSubject("s3cret", legacy)
	require.NoError(t, err)
	assert.Equal(t, "u-7", sub)

	_, err = ParseSubject("s3cret", "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
