package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/addismart/marketplace-backend/pkg/config"
	"github.com/addismart/marketplace-backend/pkg/enums"
)

func mintToken(t *testing.T, cfg config.JWTConfig, claims AccessTokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	require.NoError(t, err)
	return signed
}

func baseClaims(cfg config.JWTConfig, role enums.MemberRole) AccessTokenClaims {
	now := time.Now()
	return AccessTokenClaims{
		UserID: uuid.New(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestParseAccessToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "addismart"}
	claims := baseClaims(cfg, enums.MemberRoleBuyer)
	signed := mintToken(t, cfg, claims)

	parsed, err := ParseAccessToken(cfg, signed)
	require.NoError(t, err)
	require.Equal(t, claims.UserID, parsed.UserID)
	require.Equal(t, enums.MemberRoleBuyer, parsed.Role)
}

func TestParseAccessTokenRejectsWrongIssuer(t *testing.T) {
	mintCfg := config.JWTConfig{Secret: "secret", Issuer: "someone-else"}
	signed := mintToken(t, mintCfg, baseClaims(mintCfg, enums.MemberRoleAgent))

	_, err := ParseAccessToken(config.JWTConfig{Secret: "secret", Issuer: "addismart"}, signed)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "addismart"}
	claims := baseClaims(cfg, enums.MemberRoleBuyer)
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	signed := mintToken(t, cfg, claims)

	_, err := ParseAccessToken(cfg, signed)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsUnknownRole(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "addismart"}
	claims := baseClaims(cfg, enums.MemberRole("superuser"))
	signed := mintToken(t, cfg, claims)

	_, err := ParseAccessToken(cfg, signed)
	require.Error(t, err)
}
