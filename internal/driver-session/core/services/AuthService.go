package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

type AuthService struct {
	secretKey string
}

func NewAuthService(secretKey string) *AuthService {
	return &AuthService{
		secretKey: secretKey,
	}
}

// ValidateDriverToken checks the session token handed to the client at
// login and extracts the driver id it was issued for.
func (a *AuthService) ValidateDriverToken(tokenString string) (string, error) {
	if strings.HasPrefix(tokenString, "Bearer ") {
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.secretKey), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	if exp, ok := claims["exp"].(float64); ok {
		if time.Unix(int64(exp), 0).Before(time.Now()) {
			return "", fmt.Errorf("token expired")
		}
	}

	accountType, ok := claims["accountType"].(string)
	if !ok || accountType != "driver" {
		return "", fmt.Errorf("not a driver token")
	}

	driverID, ok := claims["driver_id"].(string)
	if !ok || driverID == "" {
		return "", fmt.Errorf("driver_id is required")
	}

	return driverID, nil
}
