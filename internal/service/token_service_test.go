package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-key-for-unit-tests"

func TestJWTTokenService_RoundTrip(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, 24*time.Hour, "payrails")

	raw, exp, err := svc.Generate("wallet-alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, time.Minute)

	claims, err := svc.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "wallet-alice", claims.AccountID)

	_, _, err = svc.Generate("")
	assert.Error(t, err)
}

func TestJWTTokenService_ExpiresOnClock(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "payrails")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	raw, _, err := svc.Generate("merchant-1")
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	_, err = svc.Validate(raw)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = svc.Validate(raw)
	assert.Error(t, err)
}

func TestJWTTokenService_Rejects(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "payrails")

	sign := func(method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
		raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return raw
	}
	valid := jwt.RegisteredClaims{
		Subject:   "merchant-1",
		Issuer:    "payrails",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	noSubject := valid
	noSubject.Subject = ""
	noExpiry := valid
	noExpiry.ExpiresAt = nil
	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"

	tests := map[string]string{
		"empty":          "",
		"malformed":      "not.a.valid.jwt",
		"wrong secret":   sign(jwt.SigningMethodHS256, []byte("other-secret"), valid),
		"wrong issuer":   sign(jwt.SigningMethodHS256, []byte(testJWTSecret), otherIssuer),
		"hs512":          sign(jwt.SigningMethodHS512, []byte(testJWTSecret), valid),
		"alg none":       sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid),
		"missing sub":    sign(jwt.SigningMethodHS256, []byte(testJWTSecret), noSubject),
		"missing expiry": sign(jwt.SigningMethodHS256, []byte(testJWTSecret), noExpiry),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Validate(raw)
			assert.Error(t, err)
		})
	}
}
