package service

import (
	"errors"
	"fmt"
	"time"

	"payrails/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

// JWTTokenService issues and checks HS256 bearer tokens whose subject is a
// directory account id.
type JWTTokenService struct {
	key    []byte
	ttl    time.Duration
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

func NewJWTTokenService(secret string, expiry time.Duration, issuer string) *JWTTokenService {
	s := &JWTTokenService{key: []byte(secret), ttl: expiry, issuer: issuer, now: time.Now}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// Generate signs a token for accountID and returns it with its expiry.
func (s *JWTTokenService) Generate(accountID string) (string, time.Time, error) {
	if accountID == "" {
		return "", time.Time{}, errors.New("account id is required")
	}
	issued := s.now()
	exp := issued.Add(s.ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   accountID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, exp, nil
}

func (s *JWTTokenService) Validate(raw string) (*ports.TokenClaims, error) {
	var claims jwt.RegisteredClaims
	if _, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return s.key, nil }); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject claim")
	}
	return &ports.TokenClaims{AccountID: claims.Subject}, nil
}
