package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenIsInvalid = errors.New("токен недействителен")
	ErrTokenIsExpired = errors.New("токен истёк")
	ErrTokenNotAdmin  = errors.New("токен не даёт прав администратора")
)

const (
	adminRole       = "admin"
	defaultTokenTTL = 24 * time.Hour
)

// JWTService выпускает и проверяет токены операторов магазина (HS256).
type JWTService struct {
	authSecretKey string
	ttl           time.Duration
	now           func() time.Time
}

func NewJWTService(authSecretKey string) *JWTService {
	return &JWTService{authSecretKey: authSecretKey, ttl: defaultTokenTTL, now: time.Now}
}

// GenerateJWT выпускает токен администратора для subject.
func (j *JWTService) GenerateJWT(subject string) (string, error) {
	now := j.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": adminRole,
		"iat":  now.Unix(),
		"exp":  now.Add(j.ttl).Unix(),
	})

	tokenString, err := token.SignedString([]byte(j.authSecretKey))
	if err != nil {
		return "", fmt.Errorf("error while generating token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken проверяет подпись, срок действия и роль администратора.
func (j *JWTService) ValidateToken(tokenString string) (*jwt.Token, error) {
	parsedToken, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.authSecretKey), nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenIsExpired
		}

		return nil, fmt.Errorf("%w: %s", ErrTokenIsInvalid, err.Error())
	}

	if !parsedToken.Valid {
		return nil, ErrTokenIsInvalid
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok || claims["role"] != adminRole {
		return nil, ErrTokenNotAdmin
	}

	return parsedToken, nil
}
