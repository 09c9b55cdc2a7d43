package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims carries the identity minted by the authentication service.
// This API only validates tokens; it never issues them.
type JWTClaims struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}
