package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Renal37/storefront/internal/logger"
	"github.com/Renal37/storefront/internal/models"
	"github.com/Renal37/storefront/internal/services"
	"go.uber.org/zap"
)

type operatorFieldType string

const operatorField operatorFieldType = "operatorField"

// AdminAuthMiddleware пропускает только запросы с действующим токеном администратора.
func AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtService := GetServiceFromContext[models.JWTService](w, r, JwtServiceKey)
		if jwtService == nil {
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Требуется заголовок Authorization", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if tokenString == "" || tokenString == authHeader {
			http.Error(w, "Ожидается токен Bearer", http.StatusUnauthorized)
			return
		}

		token, err := (*jwtService).ValidateToken(tokenString)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenIsExpired):
				http.Error(w, "Токен истёк", http.StatusUnauthorized)
			case errors.Is(err, services.ErrTokenNotAdmin):
				http.Error(w, "Недостаточно прав", http.StatusForbidden)
			default:
				http.Error(w, "Неверный токен", http.StatusUnauthorized)
			}
			return
		}

		operator, err := token.Claims.GetSubject()
		if err != nil || operator == "" {
			http.Error(w, "В токене нет поля sub", http.StatusUnauthorized)
			return
		}

		logger.Log.Debug("admin request", zap.String("operator", operator), zap.String("uri", r.RequestURI))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorField, operator)))
	})
}

// GetOperatorFromContext возвращает субъект токена администратора.
func GetOperatorFromContext(r *http.Request) string {
	operator, _ := r.Context().Value(operatorField).(string)
	return operator
}
