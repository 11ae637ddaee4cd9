package security

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

var (
	TokenAuth *jwtauth.JWTAuth
	tokenTTL  = 72 * time.Hour
)

func InitJWT(secret string, ttl time.Duration) {
	TokenAuth = jwtauth.New("HS256", []byte(secret), nil)
	if ttl > 0 {
		tokenTTL = ttl
	}
}

func GenerateToken(userID, role string) (string, error) {
	if TokenAuth == nil {
		return "", errors.New("jwt not initialised")
	}
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(tokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

// Claims as decoded by jwtauth are a plain map.
func GetUserIDFromClaims(claims map[string]any) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

func GetUserRoleFromClaims(claims map[string]any) (string, error) {
	role, ok := claims["role"].(string)
	if !ok {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}
