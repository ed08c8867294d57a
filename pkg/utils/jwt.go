package utils

import (
	"errors"
	"time"

	"AuroraGate/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

type JWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

var jwtSecretKey = []byte("change_me_in_config")

var expireDuration = time.Hour * 2 // default 2 hours

// SetJWTConfig applies the configured secret and expiry. A nil config (no
// jwt section in the yaml) keeps the baked-in defaults.
func SetJWTConfig(cfg *config.JWTConfig) {
	if cfg == nil {
		return
	}
	if cfg.Secret != "" {
		jwtSecretKey = []byte(cfg.Secret)
	}
	if cfg.ExpireDuration > 0 {
		expireDuration = time.Duration(cfg.ExpireDuration) * time.Second
	}
}

// GenerateToken signs a token whose subject is the user id.
func GenerateToken(username, userID string) (string, error) {
	claims := JWTClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expireDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecretKey)
}

func ParseToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
