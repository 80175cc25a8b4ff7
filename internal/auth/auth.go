package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var secret []byte

// Init сохраняет секрет для проверки подписи токенов.
func Init(cfg *Config) {
	secret = []byte(cfg.JWTSecret)
}

// VerifyToken проверяет Bearer-токен из заголовка Authorization
// и возвращает идентификатор пользователя (claim "sub").
func VerifyToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("no authorization header")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", fmt.Errorf("invalid authorization header format")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return sub, nil
}

// CurrentUser возвращает идентификатор пользователя или пустую строку
// для анонимного запроса. Анонимные скачивания разрешены, поэтому
// ошибка проверки токена здесь не является ошибкой запроса.
func CurrentUser(r *http.Request) string {
	userID, err := VerifyToken(r)
	if err != nil {
		return ""
	}
	return userID
}
