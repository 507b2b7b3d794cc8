package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	InvestorID string `json:"investorId"`
	jwt.RegisteredClaims
}

// SignJWT issues an HS256 token for investorID that expires after ttl.
func SignJWT(investorID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		InvestorID: investorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   investorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseJWT validates the signature and expiry and returns the investor id.
func ParseJWT(tokenStr, secret string) (string, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}
	id := claims.InvestorID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return "", ErrInvalidToken
	}
	return id, nil
}

// TokenPair is what login and refresh hand back to clients.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func IssuePair(investorID, accessSecret, refreshSecret string) (TokenPair, error) {
	access, err := SignJWT(investorID, accessSecret, AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := SignJWT(investorID, refreshSecret, RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
