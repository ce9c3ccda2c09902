package models

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/Renal37/storefront/internal/utils"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusCancelled OrderStatus = "cancelled"
	StatusCompleted OrderStatus = "completed"
)

type ShippingMethod string

const (
	ShippingPickup ShippingMethod = "pickup"
	ShippingSPB    ShippingMethod = "spb"
	ShippingRussia ShippingMethod = "rus"
	// ShippingMap: доставка до двери по точке на карте, требует адрес и координаты.
	ShippingMap ShippingMethod = "map"
)

// RequiresAddress сообщает, нужна ли для способа доставки адресная доставка.
func (m ShippingMethod) RequiresAddress() bool {
	return m == ShippingMap
}

// SettlementSource: кто инициировал переход статуса заказа.
type SettlementSource string

const (
	SourceWebhook SettlementSource = "webhook"
	SourceClient  SettlementSource = "client"
	SourceSweeper SettlementSource = "sweeper"
	SourceAdmin   SettlementSource = "admin"
)

const (
	// MaxItemQuantity совпадает с тегом max у OrderItem.Quantity.
	MaxItemQuantity = 100
	// MaxOrderUnits ограничивает число единиц товара в одном заказе, то есть строк чека.
	MaxOrderUnits = 200
)

// OrderItem: позиция заказа в снимке, который фиксируется при создании.
type OrderItem struct {
	ProductID int64  `json:"product_id" validate:"required,min=1"`
	Size      string `json:"size" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=100"`
}

// Coords: точка на карте. Принимается объектом {"lat", "lng"} или массивом [lat, lng],
// сериализуется всегда объектом.
type Coords struct {
	Lat float64 `json:"lat" validate:"min=-90,max=90"`
	Lng float64 `json:"lng" validate:"min=-180,max=180"`
}

var errCoordsFormat = errors.New("координаты задаются как [lat, lng] или {\"lat\", \"lng\"}")

func (c *Coords) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pair []float64
		if err := json.Unmarshal(data, &pair); err != nil {
			return errCoordsFormat
		}
		if len(pair) != 2 {
			return errCoordsFormat
		}
		c.Lat, c.Lng = pair[0], pair[1]
		return nil
	}

	type plain Coords
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return errCoordsFormat
	}
	*c = Coords(decoded)
	return nil
}

// OrderRequest: тело запроса на оформление заказа.
type OrderRequest struct {
	FullName       string         `json:"full_name" validate:"required"`
	Email          string         `json:"email" validate:"required,email"`
	Phone          string         `json:"phone" validate:"required,min=5"`
	ShippingMethod ShippingMethod `json:"shipping_method" validate:"required,oneof=pickup spb rus map"`
	Address        string         `json:"address"`
	Coords         *Coords        `json:"coords"`
	Items          []OrderItem    `json:"items" validate:"required,min=1,dive"`
	Promo          string         `json:"promo,omitempty"`
	AgreePolicy    bool           `json:"agree_policy"`
}

// CreatedOrder: ответ на успешное оформление заказа.
type CreatedOrder struct {
	ID              int64             `json:"orderId"`
	CreatedAt       utils.RFC3339Date `json:"createdAt"`
	Total           int64             `json:"total"`
	ConfirmationURL string            `json:"confirmationUrl"`
}

// OrderView: публичное представление статуса заказа.
type OrderView struct {
	Status   OrderStatus `json:"status"`
	Total    int64       `json:"total"`
	Telegram *string     `json:"telegram"`
}

// StatusReport: отчёт клиента о результате оплаты после редиректа.
type StatusReport struct {
	Status *OrderStatus `json:"status"`
}

type TelegramContact struct {
	Telegram *string `json:"telegram"`
}

// PromoView: ответ на проверку промокода.
type PromoView struct {
	DiscountPercent int `json:"discount_percent"`
}
