package database

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Renal37/storefront/internal/models"
	"github.com/jackc/pgx/v5"
)

// SQL-запросы для работы с заказами
const (
	orderColumns = `
			id,
			full_name,
			email,
			phone,
			shipping_method,
			address,
			coords,
			promo,
			items,
			total,
			status,
			telegram,
			payment_id,
			created_at`

	InsertOrderQuery = `
		INSERT INTO
			orders (full_name, email, phone, shipping_method, address, coords, promo, items, total, agree_policy)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8::jsonb, $9, true)
		RETURNING` + orderColumns

	SelectOrderQuery = `
		SELECT` + orderColumns + `
		FROM
			orders
		WHERE
			id = $1
	`
	// TransitionOrderQuery меняет статус только если заказ всё ещё в ожидаемом статусе.
	TransitionOrderQuery = `
		UPDATE
			orders
		SET
			status = $3
		WHERE
			id = $1
			AND status = $2
		RETURNING` + orderColumns

	SelectPaidOrderWithPromoQuery = `
		SELECT
			1
		FROM
			orders
		WHERE
			(lower(email) = $1 OR phone = $2)
			AND promo IS NOT NULL
			AND status IN ('paid', 'completed')
			AND id <> $3
		LIMIT 1
	`
	// Блокировки покупателя держатся до конца транзакции. Сначала email, затем телефон.
	LockBuyerEmailQuery = `SELECT pg_advisory_xact_lock(hashtext('email:' || $1))`
	LockBuyerPhoneQuery = `SELECT pg_advisory_xact_lock(hashtext('phone:' || $1))`
	UpdateOrderTelegramQuery = `
		UPDATE
			orders
		SET
			telegram = $2
		WHERE
			id = $1
			AND status = 'paid'
			AND (telegram IS NULL OR telegram = '')
		RETURNING` + orderColumns

	UpdateOrderPaymentIDQuery = `
		UPDATE
			orders
		SET
			payment_id = $2
		WHERE
			id = $1
	`
	// CancelExpiredOrdersQuery не трогает заказы, ожидающие ручной сверки после сбоя оплаты.
	CancelExpiredOrdersQuery = `
		UPDATE
			orders o
		SET
			status = 'cancelled'
		WHERE
			o.status = 'pending'
			AND o.created_at < $1
			AND NOT EXISTS (
				SELECT 1 FROM settlement_failures f WHERE f.order_id = o.id
			)
		RETURNING o.id
	`
	InsertSettlementFailureQuery = `
		INSERT INTO
			settlement_failures (order_id, source, reason)
		VALUES ($1, $2, $3)
	`
)

// OrderDB: строка таблицы orders.
type OrderDB struct {
	ID             int64
	FullName       string
	Email          string
	Phone          string
	ShippingMethod models.ShippingMethod
	Address        *string
	Coords         *models.Coords
	Promo          *string
	Items          []models.OrderItem
	Total          int64
	Status         OrderStatusDB
	Telegram       *string
	PaymentID      *string
	CreatedAt      time.Time
}

// OrderStatusDB: статус заказа с преобразованием в/из базы данных.
type OrderStatusDB struct {
	models.OrderStatus
}

// Реализация интерфейса sql.Scanner для чтения статуса заказа из базы данных
func (s *OrderStatusDB) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("статус заказа должен быть строкой, а не %T", value)
	}

	*s = OrderStatusDB{models.OrderStatus(strVal)}
	return nil
}

// Реализация интерфейса driver.Valuer для преобразования статуса заказа в строку перед записью в базу данных
func (s OrderStatusDB) Value() (driver.Value, error) {
	return string(s.OrderStatus), nil
}

// Status упаковывает статус модели для передачи в запросы.
func Status(status models.OrderStatus) OrderStatusDB {
	return OrderStatusDB{status}
}

func scanOrder(row pgx.Row) (*OrderDB, error) {
	var (
		order          OrderDB
		shippingMethod string
		coords         []byte
		items          []byte
	)

	err := row.Scan(
		&order.ID,
		&order.FullName,
		&order.Email,
		&order.Phone,
		&shippingMethod,
		&order.Address,
		&coords,
		&order.Promo,
		&items,
		&order.Total,
		&order.Status,
		&order.Telegram,
		&order.PaymentID,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.ShippingMethod = models.ShippingMethod(shippingMethod)

	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("не удалось разобрать состав заказа %d: %w", order.ID, err)
	}

	if len(coords) > 0 && string(coords) != "null" {
		order.Coords = &models.Coords{}
		if err := json.Unmarshal(coords, order.Coords); err != nil {
			return nil, fmt.Errorf("не удалось разобрать координаты заказа %d: %w", order.ID, err)
		}
	}

	return &order, nil
}

// InsertOrder сохраняет новый заказ в статусе pending вместе со снимком позиций.
func (q *queries) InsertOrder(ctx context.Context, order OrderDB) (*OrderDB, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("не удалось сериализовать состав заказа: %w", err)
	}

	var coords []byte
	if order.Coords != nil {
		if coords, err = json.Marshal(order.Coords); err != nil {
			return nil, fmt.Errorf("не удалось сериализовать координаты: %w", err)
		}
	}

	created, err := scanOrder(q.db.QueryRow(ctx, InsertOrderQuery,
		order.FullName,
		order.Email,
		order.Phone,
		string(order.ShippingMethod),
		order.Address,
		coords,
		order.Promo,
		items,
		order.Total,
	))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания заказа: %w", err)
	}

	return created, nil
}

// TransitionOrder выполняет условное обновление статуса from -> to.
// Возвращает nil без ошибки, если ни одна строка не изменилась.
func (q *queries) TransitionOrder(ctx context.Context, orderID int64, from, to OrderStatusDB) (*OrderDB, error) {
	order, err := scanOrder(q.db.QueryRow(ctx, TransitionOrderQuery, orderID, from, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка смены статуса заказа %d: %w", orderID, err)
	}

	return order, nil
}

// HasPaidOrderWithPromo проверяет, применял ли покупатель промокод в оплаченном заказе,
// кроме заказа exceptOrderID. При оформлении передаётся 0.
func (q *queries) HasPaidOrderWithPromo(ctx context.Context, email, phone string, exceptOrderID int64) (bool, error) {
	var one int
	err := q.db.QueryRow(ctx, SelectPaidOrderWithPromoQuery, email, phone, exceptOrderID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки использования промокода: %w", err)
	}

	return true, nil
}

// LockBuyer сериализует оплату заказов одного покупателя до конца транзакции.
func (q *queries) LockBuyer(ctx context.Context, email, phone string) error {
	if _, err := q.db.Exec(ctx, LockBuyerEmailQuery, email); err != nil {
		return fmt.Errorf("ошибка блокировки покупателя: %w", err)
	}
	if _, err := q.db.Exec(ctx, LockBuyerPhoneQuery, phone); err != nil {
		return fmt.Errorf("ошибка блокировки покупателя: %w", err)
	}
	return nil
}

// FindOrder ищет заказ по ID. Если заказ не найден, возвращает nil без ошибки.
func (d *Database) FindOrder(ctx context.Context, orderID int64) (*OrderDB, error) {
	order, err := scanOrder(d.db.QueryRow(ctx, SelectOrderQuery, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка поиска заказа: %w", err)
	}

	return order, nil
}

// TransitionOrder выполняет условное обновление статуса вне явной транзакции.
func (d *Database) TransitionOrder(ctx context.Context, orderID int64, from, to OrderStatusDB) (*OrderDB, error) {
	return d.pool().TransitionOrder(ctx, orderID, from, to)
}

// SetTelegram записывает ник один раз и только для оплаченного заказа.
func (d *Database) SetTelegram(ctx context.Context, orderID int64, telegram string) (*OrderDB, error) {
	order, err := scanOrder(d.db.QueryRow(ctx, UpdateOrderTelegramQuery, orderID, telegram))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка сохранения telegram: %w", err)
	}

	return order, nil
}

func (d *Database) SetPaymentID(ctx context.Context, orderID int64, paymentID string) error {
	if _, err := d.db.Exec(ctx, UpdateOrderPaymentIDQuery, orderID, paymentID); err != nil {
		return fmt.Errorf("ошибка сохранения идентификатора платежа: %w", err)
	}
	return nil
}

// CancelExpiredOrders отменяет все заказы в pending, созданные раньше createdBefore.
func (d *Database) CancelExpiredOrders(ctx context.Context, createdBefore time.Time) ([]int64, error) {
	rows, err := d.db.Query(ctx, CancelExpiredOrdersQuery, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("ошибка отмены просроченных заказов: %w", err)
	}
	defer rows.Close()

	var result []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка обработки строки с заказом: %w", err)
		}
		result = append(result, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по строкам: %w", err)
	}

	return result, nil
}

// RecordSettlementFailure оставляет след для ручной сверки оплаченного, но не проведённого заказа.
func (d *Database) RecordSettlementFailure(ctx context.Context, orderID int64, source models.SettlementSource, reason string) error {
	if _, err := d.db.Exec(ctx, InsertSettlementFailureQuery, orderID, string(source), reason); err != nil {
		return fmt.Errorf("ошибка записи сбоя проведения заказа %d: %w", orderID, err)
	}
	return nil
}
