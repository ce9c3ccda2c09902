package models

import (
	"fmt"
)

// ValidationError: входные данные некорректны, клиент должен исправить запрос.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("некорректное поле %s: %s", e.Field, e.Message)
}

// NotFoundError: запрошенная сущность не найдена или не подходит под условие обновления.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s не найден", e.Entity, e.ID)
}

// ConflictError: операция противоречит текущему состоянию (промокод истёк, уже использован и т.п.).
type ConflictError struct {
	Reason string
	Err    error
}

func (e *ConflictError) Error() string {
	return "конфликт: " + e.Reason
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// AuthenticationError: подпись уведомления платёжного шлюза не прошла проверку.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "ошибка аутентификации: " + e.Reason
}

// ExternalGatewayError: не удалось создать платёж. Заказ остаётся в pending.
type ExternalGatewayError struct {
	Op  string
	Err error
}

func (e *ExternalGatewayError) Error() string {
	return fmt.Sprintf("платёжный шлюз (%s): %v", e.Op, e.Err)
}

func (e *ExternalGatewayError) Unwrap() error {
	return e.Err
}

// StockInsufficientError: при подтверждении оплаты не хватило остатка.
// Оплата у шлюза уже прошла, поэтому ошибка требует ручной сверки.
type StockInsufficientError struct {
	ProductID int64
	Size      string
	Requested int
	Available int
}

func (e *StockInsufficientError) Error() string {
	return fmt.Sprintf("недостаточно товара %d/%s: запрошено %d, доступно %d",
		e.ProductID, e.Size, e.Requested, e.Available)
}

// InvariantViolationError: нарушен внутренний инвариант (например, остаток при разбиении чека).
type InvariantViolationError struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("нарушен инвариант %s: %s", e.Invariant, e.Detail)
}
