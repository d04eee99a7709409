package peoplehub

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CallerFromToken reads the caller id from a bearer token without verifying
// it. The xuid claim wins over sub.
func CallerFromToken(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return "", fmt.Errorf("token is empty")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if xuid, ok := claims["xuid"].(string); ok && strings.TrimSpace(xuid) != "" {
		return strings.TrimSpace(xuid), nil
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("token subject: %w", err)
	}
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("token has no xuid or sub claim")
	}
	return strings.TrimSpace(subject), nil
}
