package fakeauditor

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var errTokenInvalid = errors.New("token is invalid or expired")

// claims mirrors what a SimpleJWT backend puts in its tokens, plus the
// generation counter that lets tests expire every access token at once.
type claims struct {
	TokenType  string `json:"token_type"`
	Generation int    `json:"gen"`
	jwt.RegisteredClaims
}

func (s *Server) issue(userID, tokenType string, ttl time.Duration) (string, string, error) {
	now := time.Now()
	jti := uuid.NewString()
	c := claims{
		TokenType:  tokenType,
		Generation: s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("signing %s token: %w", tokenType, err)
	}
	return signed, jti, nil
}

// issuePair must be called with s.mu held
func (s *Server) issuePair(userID string) (access, refresh string, err error) {
	access, _, err = s.issue(userID, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, _, err = s.issue(userID, tokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// verify must be called with s.mu held
func (s *Server) verify(raw, tokenType string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTokenInvalid, err)
	}
	if c.TokenType != tokenType {
		return nil, fmt.Errorf("%w: wrong token type %q", errTokenInvalid, c.TokenType)
	}
	if tokenType == tokenTypeAccess && c.Generation != s.generation {
		return nil, fmt.Errorf("%w: access token generation %d expired", errTokenInvalid, c.Generation)
	}
	if tokenType == tokenTypeRefresh && s.blacklist[c.ID] {
		return nil, fmt.Errorf("%w: refresh token blacklisted", errTokenInvalid)
	}
	return c, nil
}
