package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/ordercore/pkg/enums"
)

// AccessTokenPayload captures the identity an upstream issuer signs.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	Email  string
}

// AccessTokenClaims represents the typed JWT presented by callers.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	Email  string          `json:"email,omitempty"`
	jwt.RegisteredClaims
}
