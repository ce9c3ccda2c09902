package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/Renal37/storefront/internal/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	LockStockQuery = `
		SELECT
			qty
		FROM
			product_stock
		WHERE
			product_id = $1
			AND size = $2
		FOR UPDATE
	`
	// DecrementStockQuery не даёт уйти в минус даже без предварительной блокировки.
	DecrementStockQuery = `
		UPDATE
			product_stock
		SET
			qty = qty - $3
		WHERE
			product_id = $1
			AND size = $2
			AND qty >= $3
	`
)

// LockStock блокирует строку остатка до конца транзакции и возвращает количество.
// Отсутствующая строка считается нулевым остатком.
func (q *queries) LockStock(ctx context.Context, productID int64, size string) (int, error) {
	var qty int
	err := q.db.QueryRow(ctx, LockStockQuery, productID, size).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("ошибка блокировки остатка %d/%s: %w", productID, size, err)
	}

	return qty, nil
}

// DecrementStock списывает quantity единиц. Если остатка не хватает, возвращает StockInsufficientError.
func (q *queries) DecrementStock(ctx context.Context, productID int64, size string, quantity int) error {
	tag, err := q.db.Exec(ctx, DecrementStockQuery, productID, size, quantity)
	if err != nil {
		var e *pgconn.PgError
		if errors.As(err, &e) && e.Code == pgerrcode.CheckViolation {
			return &models.StockInsufficientError{ProductID: productID, Size: size, Requested: quantity}
		}
		return fmt.Errorf("ошибка списания остатка %d/%s: %w", productID, size, err)
	}

	if tag.RowsAffected() == 0 {
		return &models.StockInsufficientError{ProductID: productID, Size: size, Requested: quantity}
	}

	return nil
}
