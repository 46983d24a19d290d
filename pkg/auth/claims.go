package auth

import (
	"github.com/addismart/marketplace-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenClaims represents the typed JWT presented by clients. The token
// is minted by the identity service; this backend only verifies it.
type AccessTokenClaims struct {
	UserID uuid.UUID        `json:"user_id"`
	Role   enums.MemberRole `json:"role"`
	ShopID *uuid.UUID       `json:"shop_id,omitempty"`
	jwt.RegisteredClaims
}
