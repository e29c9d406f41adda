package models

import "github.com/golang-jwt/jwt/v5"

// RoleAdmin is the only role issued by the admin login.
const RoleAdmin = "admin"

// AdminClaims is the JWT payload of admin tokens.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}
