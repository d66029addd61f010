package service

import (
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"xepbot/internal/logger"

	"github.com/golang-jwt/jwt/v5"
)

const jwtTTL = 24 * time.Hour

var (
	jwtMu     sync.RWMutex
	jwtSecret = []byte("local_dev_secret")

	ErrInvalidToken = errors.New("invalid token")
)

// Claims токена web app: id пользователя и его telegram id
type Claims struct {
	UserID int64 `json:"uid"`
	TgID   int64 `json:"tg_id"`
	jwt.RegisteredClaims
}

// InitJWT берет секрет из JWT_SECRET
func InitJWT() {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		SetJWTSecret(s)
		return
	}
	logger.Warn("JWT_SECRET not set, using local dev secret")
}

func SetJWTSecret(secret string) {
	jwtMu.Lock()
	defer jwtMu.Unlock()
	jwtSecret = []byte(secret)
}

func secret() []byte {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	return jwtSecret
}

// GenerateJWT выпускает токен на сутки
func GenerateJWT(userID, tgID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		TgID:   tgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret())
}

// ParseJWT проверяет подпись и срок, возвращает claims
func ParseJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
