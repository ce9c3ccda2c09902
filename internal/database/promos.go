package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	promoColumns = `
			code,
			discount_percent,
			single_use,
			expires_at,
			usage_count`

	SelectPromoQuery = `
		SELECT` + promoColumns + `
		FROM
			promo_codes
		WHERE
			code = $1
	`
	LockPromoQuery = SelectPromoQuery + `
		FOR UPDATE
	`
	IncrementPromoUsageQuery = `
		UPDATE
			promo_codes
		SET
			usage_count = usage_count + 1
		WHERE
			code = $1
	`
)

// PromoDB: строка таблицы promo_codes.
type PromoDB struct {
	Code            string
	DiscountPercent int
	SingleUse       bool
	ExpiresAt       *time.Time
	UsageCount      int
}

// Expired сообщает, истёк ли срок действия промокода на момент now.
func (p *PromoDB) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// Exhausted сообщает, что одноразовый промокод уже был применён.
func (p *PromoDB) Exhausted() bool {
	return p.SingleUse && p.UsageCount > 0
}

func scanPromo(row pgx.Row) (*PromoDB, error) {
	var promo PromoDB
	err := row.Scan(
		&promo.Code,
		&promo.DiscountPercent,
		&promo.SingleUse,
		&promo.ExpiresAt,
		&promo.UsageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

// LockPromo читает промокод с блокировкой строки. Если код не найден, возвращает nil без ошибки.
func (q *queries) LockPromo(ctx context.Context, code string) (*PromoDB, error) {
	promo, err := scanPromo(q.db.QueryRow(ctx, LockPromoQuery, code))
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки промокода %s: %w", code, err)
	}
	return promo, nil
}

func (q *queries) IncrementPromoUsage(ctx context.Context, code string) error {
	tag, err := q.db.Exec(ctx, IncrementPromoUsageQuery, code)
	if err != nil {
		return fmt.Errorf("ошибка учёта использования промокода %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("промокод %s не найден при учёте использования", code)
	}
	return nil
}

// FindPromo читает промокод без блокировки.
func (d *Database) FindPromo(ctx context.Context, code string) (*PromoDB, error) {
	promo, err := scanPromo(d.db.QueryRow(ctx, SelectPromoQuery, code))
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска промокода %s: %w", code, err)
	}
	return promo, nil
}
