package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestCreateAndVerifyToken(t *testing.T) {
	cfg := TokenConfig{Secret: "s3cret", Expiry: time.Hour, Issuer: "test"}

	token, err := CreateToken(42, cfg)
	require.NoError(t, err)

	claims, err := VerifyToken(token, cfg)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, "test", claims.Issuer)
	require.Equal(t, "42", claims.Subject)
}

func TestCreateTokenValidation(t *testing.T) {
	_, err := CreateToken(42, TokenConfig{Expiry: time.Hour})
	require.Error(t, err)

	_, err = CreateToken(0, TokenConfig{Secret: "s", Expiry: time.Hour})
	require.Error(t, err)

	_, err = CreateToken(42, TokenConfig{Secret: "s"})
	require.Error(t, err)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	cfg := TokenConfig{Secret: "s3cret", Expiry: time.Hour, Issuer: "test"}
	token, err := CreateToken(42, cfg)
	require.NoError(t, err)

	_, err = VerifyToken(token, TokenConfig{Secret: "other"})
	require.Error(t, err)
}

func TestVerifyTokenExpired(t *testing.T) {
	cfg := TokenConfig{Secret: "s3cret", Expiry: time.Hour, Issuer: "test"}

	claims := Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = VerifyToken(token, cfg)
	require.Error(t, err)
}

func TestVerifyTokenRejectsWrongAlgorithm(t *testing.T) {
	cfg := TokenConfig{Secret: "s3cret", Expiry: time.Hour, Issuer: "test"}

	claims := Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = VerifyToken(token, cfg)
	require.Error(t, err)
}

func TestVerifyTokenRejectsMissingUserID(t *testing.T) {
	cfg := TokenConfig{Secret: "s3cret", Expiry: time.Hour, Issuer: "test"}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = VerifyToken(token, cfg)
	require.Error(t, err)
}
