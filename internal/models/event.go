package models

import "time"

type EventType string

const (
	EventOrderPaid             EventType = "order.paid"
	EventOrderCancelled        EventType = "order.cancelled"
	EventOrderCompleted        EventType = "order.completed"
	EventOrderTelegramProvided EventType = "order.telegram_provided"
)

// OrderEvent публикуется только после фиксации транзакции.
type OrderEvent struct {
	Type       EventType        `json:"type"`
	OrderID    int64            `json:"order_id"`
	Source     SettlementSource `json:"source,omitempty"`
	Status     OrderStatus      `json:"status"`
	Total      int64            `json:"total,omitempty"`
	FullName   string           `json:"full_name,omitempty"`
	Email      string           `json:"email,omitempty"`
	Phone      string           `json:"phone,omitempty"`
	Telegram   string           `json:"telegram,omitempty"`
	Items      []OrderItem      `json:"items,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
