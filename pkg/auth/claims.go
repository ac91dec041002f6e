package auth

import "github.com/golang-jwt/jwt/v5"

// AdminRole is the only role allowed to drive the recovery endpoints.
const AdminRole = "admin"

// AccessTokenClaims carries the admin identity inside the signed JWT.
type AccessTokenClaims struct {
	AdminID  int64  `json:"admin_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AccessTokenPayload is the input for minting an access token.
type AccessTokenPayload struct {
	AdminID  int64
	Username string
	Role     string
	JTI      string
}
