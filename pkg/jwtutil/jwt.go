package jwtutil

import (
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID   string            `json:"uid"`
	Username string            `json:"username,omitempty"`
	Device   string            `json:"device,omitempty"`
	Extra    map[string]string `json:"data,omitempty"`
	jwt.RegisteredClaims
}

// Subject returns the user identity carried by the token. Older tokens
// carry it in the registered "sub" claim, newer ones in "uid".
func (c *Claims) Subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

type JWTConfig struct {
	PubPath  string
	Issuer   string
	Audience string
}
