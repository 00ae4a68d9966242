package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAnon is the role carried by publicly distributed access keys. The
// dashboard is a public read surface; the feed only needs to know the key
// was issued by us.
const RoleAnon = "anon"

// Claims defines the structured data carried by an access key.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// KeyManager issues and validates change-feed access keys. Keys are HMAC
// signed JWTs handed to clients through configuration, the same way a
// hosted backend distributes its anon key.
type KeyManager struct {
	secretKey []byte
}

func NewKeyManager(secret string) *KeyManager {
	return &KeyManager{secretKey: []byte(secret)}
}

// GenerateAccessKey creates a long-lived access key for feed subscribers.
func (km *KeyManager) GenerateAccessKey(role string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   role,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(km.secretKey)
}

// ValidateAccessKey parses and validates the key string.
func (km *KeyManager) ValidateAccessKey(keyString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(keyString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return km.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid access key")
	}

	return claims, nil
}
