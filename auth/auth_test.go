package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hashTable map[string]string

func (h hashTable) GetAPITokenHash(ctx context.Context, userID string) (string, error) {
	hash, ok := h[userID]
	if !ok {
		return "", errors.New("user not found")
	}
	return hash, nil
}

func TestIssueAndVerify(t *testing.T) {
	token, hash, err := IssueToken("user-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "user-1."))
	assert.NotContains(t, hash, token)

	v := NewAPITokenVerifier(hashTable{"user-1": hash})

	uid, err := v.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)

	_, err = v.VerifyToken(context.Background(), token+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.VerifyToken(context.Background(), "user-2."+strings.SplitN(token, ".", 2)[1])
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.VerifyToken(context.Background(), "no-separator")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueToken_RejectsDottedUID(t *testing.T) {
	_, _, err := IssueToken("a.b")
	assert.Error(t, err)
}

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier(map[string]string{"dev-token": "user-1"})

	uid, err := v.VerifyToken(context.Background(), "dev-token")
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)

	_, err = v.VerifyToken(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	token, err = BearerToken("bearer   xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		_, err := BearerToken(header)
		assert.ErrorIs(t, err, ErrMissingToken, header)
	}
}
