package middlewares

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Renal37/storefront/internal/models"
)

type key int

const (
	JwtServiceKey key = iota
	OrderServiceKey
	SettlementServiceKey
	WebhookServiceKey
	PromoServiceKey
)

// ServiceInjectorMiddleware кладёт сервисы в контекст запроса.
func ServiceInjectorMiddleware(
	jwtService models.JWTService,
	orderService models.OrderService,
	settlementService models.SettlementService,
	webhookService models.WebhookService,
	promoService models.PromoService,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), JwtServiceKey, jwtService)
			ctx = context.WithValue(ctx, OrderServiceKey, orderService)
			ctx = context.WithValue(ctx, SettlementServiceKey, settlementService)
			ctx = context.WithValue(ctx, WebhookServiceKey, webhookService)
			ctx = context.WithValue(ctx, PromoServiceKey, promoService)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetServiceFromContext достаёт сервис по ключу. Если сервиса нет, отвечает 500 и возвращает nil.
func GetServiceFromContext[Service interface{}](w http.ResponseWriter, r *http.Request, serviceKey key) *Service {
	foundService, ok := r.Context().Value(serviceKey).(Service)

	if !ok {
		http.Error(w, fmt.Sprintf("Сервис не найден в контексте по ключу %v", serviceKey), http.StatusInternalServerError)
		return nil
	}

	return &foundService
}
