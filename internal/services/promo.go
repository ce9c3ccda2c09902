package services

import (
	"context"
	"strings"
	"time"

	"github.com/Renal37/storefront/internal/database"
	"github.com/Renal37/storefront/internal/models"
)

// PromoService отвечает на проверку промокода до оформления заказа.
type PromoService struct {
	storage promoStorage
	now     func() time.Time
}

type promoStorage interface {
	FindPromo(ctx context.Context, code string) (*database.PromoDB, error)
}

func NewPromoService(storage promoStorage) *PromoService {
	return &PromoService{storage: storage, now: time.Now}
}

// CheckPromo не резервирует код: окончательная проверка идёт при оформлении и при оплате.
func (p *PromoService) CheckPromo(ctx context.Context, code string) (*models.PromoView, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, &models.ValidationError{Field: "code", Message: "обязательное поле"}
	}

	promo, err := p.storage.FindPromo(ctx, code)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, &models.NotFoundError{Entity: "промокод", ID: code}
	}
	if err := checkPromo(promo, p.now()); err != nil {
		return nil, err
	}

	return &models.PromoView{DiscountPercent: promo.DiscountPercent}, nil
}
