// Package attest issues and verifies signed progress attestations: compact
// HS256 JWTs summarising a scroll's reading history and chain state.
package attest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/scrollkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "scrollkeeper"

// Progress is the attested state of one scroll.
type Progress struct {
	ScrollID          int     `json:"scrollId"`
	Records           int     `json:"records"`
	ChainHeadSequence int64   `json:"chainHeadSequence"`
	ChainHeadHash     string  `json:"chainHeadHash"`
	TrustScore        float64 `json:"trustScore"`
	ChainIntact       bool    `json:"chainIntact"`
	DeviceInfo        string  `json:"deviceInfo"`
}

// Claims are the standard claims plus the attested progress.
type Claims struct {
	jwt.RegisteredClaims
	Progress
}

// Issue signs p with key; the token expires after ttl.
func Issue(p Progress, key []byte, ttl time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   strconv.Itoa(p.ScrollID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Progress: p,
	})

	tokenString, err := token.SignedString(key)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// Verify checks the signature, issuer and expiry of tokenString at now and
// returns its claims. Every failure wraps common.ErrInvalidToken.
func Verify(tokenString string, key []byte, now time.Time) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
