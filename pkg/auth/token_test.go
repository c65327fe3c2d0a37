package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ordercore/pkg/config"
	"github.com/angelmondragon/ordercore/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "ordercore"}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(testCfg, now, 30*time.Minute, AccessTokenPayload{
		UserID: userID,
		Role:   enums.ActorRoleCustomer,
		Email:  "buyer@example.com",
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.ActorRoleCustomer, claims.Role)
	assert.Equal(t, "buyer@example.com", claims.Email)
	assert.Equal(t, testCfg.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestParseAccessTokenRejectsExpiredAndForeignIssuer(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	expired, err := MintAccessToken(testCfg, past, time.Minute, AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleAdmin})
	require.NoError(t, err)
	_, err = ParseAccessToken(testCfg, expired)
	assert.Error(t, err)

	other := config.JWTConfig{Secret: "secret", Issuer: "someone-else"}
	foreign, err := MintAccessToken(other, time.Now(), time.Minute, AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleAdmin})
	require.NoError(t, err)
	_, err = ParseAccessToken(testCfg, foreign)
	assert.Error(t, err)
}

func TestParseAccessTokenRejectsUnknownRole(t *testing.T) {
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(testCfg, signed)
	assert.Error(t, err)
}

func TestMintValidatesInput(t *testing.T) {
	_, err := MintAccessToken(config.JWTConfig{}, time.Now(), time.Minute, AccessTokenPayload{Role: enums.ActorRoleAdmin})
	assert.Error(t, err)
	_, err = MintAccessToken(testCfg, time.Now(), 0, AccessTokenPayload{Role: enums.ActorRoleAdmin})
	assert.Error(t, err)
	_, err = MintAccessToken(testCfg, time.Now(), time.Minute, AccessTokenPayload{Role: "nobody"})
	assert.Error(t, err)
}
