package attest

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/scrollkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey = []byte("attestation-key")
	now     = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
)

func progress() Progress {
	return Progress{
		ScrollID:          2,
		Records:           9,
		ChainHeadSequence: 27,
		ChainHeadHash:     "abc123",
		TrustScore:        89,
		ChainIntact:       true,
		DeviceInfo:        "dev",
	}
}

func TestIssueVerify(t *testing.T) {
	token, err := Issue(progress(), testKey, time.Hour, now)
	require.NoError(t, err)

	claims, err := Verify(token, testKey, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, progress(), claims.Progress)
	assert.Equal(t, "2", claims.Subject)
	assert.Equal(t, issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestVerify_Expired(t *testing.T) {
	token, err := Issue(progress(), testKey, time.Hour, now)
	require.NoError(t, err)

	_, err = Verify(token, testKey, now.Add(2*time.Hour))
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_WrongKey(t *testing.T) {
	token, err := Issue(progress(), testKey, time.Hour, now)
	require.NoError(t, err)

	_, err = Verify(token, []byte("other"), now)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	_, err := Verify("not-a-token", testKey, now)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Progress: progress(),
	})
	s, err := token.SignedString(testKey)
	require.NoError(t, err)

	_, err = Verify(s, testKey, now)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_WrongIssuer(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Progress: progress(),
	})
	s, err := token.SignedString(testKey)
	require.NoError(t, err)

	_, err = Verify(s, testKey, now)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}
