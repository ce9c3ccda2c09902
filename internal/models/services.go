package models

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

//go:generate mockgen -destination=mocks/mock_jwt.go . JWTService
type JWTService interface {
	GenerateJWT(subject string) (string, error)

	ValidateToken(token string) (*jwt.Token, error)
}

//go:generate mockgen -destination=mocks/mock_order.go . OrderService
type OrderService interface {
	CreateOrder(ctx context.Context, request OrderRequest) (*CreatedOrder, error)

	GetOrder(ctx context.Context, orderID int64) (*OrderView, error)

	SetTelegram(ctx context.Context, orderID int64, handle string) error
}

//go:generate mockgen -destination=mocks/mock_settlement.go . SettlementService
type SettlementService interface {
	ReportClientStatus(ctx context.Context, orderID int64, status OrderStatus) error

	Complete(ctx context.Context, orderID int64) error
}

//go:generate mockgen -destination=mocks/mock_webhook.go . WebhookService
type WebhookService interface {
	HandleNotification(ctx context.Context, body []byte, signature string) error
}

//go:generate mockgen -destination=mocks/mock_promo.go . PromoService
type PromoService interface {
	CheckPromo(ctx context.Context, code string) (*PromoView, error)
}
