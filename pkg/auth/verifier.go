package auth

import (
	"fmt"

	"gardener-chat-be/pkg/store"

	"github.com/golang-jwt/jwt/v5"
)

// AuthVerifier resolves a bearer token to the id of the user it was issued to.
type AuthVerifier interface {
	Verify(token string) (userID string, err error)
}

// JWTVerifier accepts HMAC-signed tokens carrying a "user_id" claim.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", fmt.Errorf("%w: missing token", store.ErrAuthentication)
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid token: %v", store.ErrAuthentication, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid token claims", store.ErrAuthentication)
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: token missing user_id", store.ErrAuthentication)
	}
	return userID, nil
}

// IssueToken signs a token for userID. Used by tests and the probe CLI.
func IssueToken(secret, userID string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["user_id"] = userID
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
