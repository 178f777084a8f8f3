package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APIKeyPrefix marks management API keys issued by this service
const APIKeyPrefix = "infergate-"

// JWTManager issues and validates management API tokens
type JWTManager struct {
	secretKey string
}

// Claims represents the JWT claims carried by an API key
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string) *JWTManager {
	return &JWTManager{secretKey: secretKey}
}

// GenerateToken generates a signed token for the given role
func (j *JWTManager) GenerateToken(role string) (string, error) {
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(365 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// GenerateAPIKey generates a prefixed API key for the given role
func (j *JWTManager) GenerateAPIKey(role string) (string, error) {
	token, err := j.GenerateToken(role)
	if err != nil {
		return "", err
	}
	return APIKeyPrefix + token, nil
}

// ValidateAPIKey validates a prefixed API key, tolerating a leading
// "Bearer " scheme, and returns its claims
func (j *JWTManager) ValidateAPIKey(key string) (*Claims, error) {
	key = strings.TrimPrefix(key, "Bearer ")
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return nil, fmt.Errorf("invalid API key format: must start with %q", APIKeyPrefix)
	}
	return j.validateJWT(strings.TrimPrefix(key, APIKeyPrefix))
}

func (j *JWTManager) validateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
