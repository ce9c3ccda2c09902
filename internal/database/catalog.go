package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const SelectProductQuery = `
		SELECT
			id,
			title,
			price
		FROM
			products
		WHERE
			id = $1
	`

// ProductDB: товар каталога. Цена в копейках.
type ProductDB struct {
	ID    int64
	Title string
	Price int64
}

// FindProduct возвращает актуальную цену товара. Если товар не найден, возвращает nil без ошибки.
func (q *queries) FindProduct(ctx context.Context, productID int64) (*ProductDB, error) {
	var product ProductDB
	err := q.db.QueryRow(ctx, SelectProductQuery, productID).Scan(&product.ID, &product.Title, &product.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения товара %d: %w", productID, err)
	}

	return &product, nil
}

// FindProduct читает товар вне транзакции.
func (d *Database) FindProduct(ctx context.Context, productID int64) (*ProductDB, error) {
	return d.pool().FindProduct(ctx, productID)
}
