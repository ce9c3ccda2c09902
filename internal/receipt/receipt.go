// Package receipt раскладывает итоговую сумму заказа со скидкой по строкам фискального чека.
//
// Все суммы хранятся в целых минимальных единицах валюты (копейки). Каждая строка чека соответствует
// одной единице товара, поэтому позиция с количеством 4 превращается в четыре строки.
// Последняя строка получает весь оставшийся бюджет, так что сумма строк всегда равна
// итогу со скидкой независимо от ошибок округления.
package receipt

import (
	"fmt"

	"github.com/Renal37/storefront/internal/models"
)

type LineKind string

const (
	KindCommodity LineKind = "commodity"
	KindService   LineKind = "service"
)

// ShippingDescription: название строки доставки в чеке.
const ShippingDescription = "Доставка"

// Unit: одна единица товара в чеке до применения скидки.
type Unit struct {
	ProductID   int64
	Size        string
	Description string
	UnitPrice   int64
}

// Line: строка чека с итоговой суммой.
type Line struct {
	ProductID   int64
	Size        string
	Description string
	Amount      int64
	Kind        LineKind
}

// PricedItem: позиция заказа с ценой из каталога.
type PricedItem struct {
	models.OrderItem
	Title     string
	UnitPrice int64
}

// Expand разворачивает позиции в единицы, сохраняя порядок, в котором они были переданы.
func Expand(items []PricedItem) []Unit {
	var units []Unit
	for _, item := range items {
		for i := 0; i < item.Quantity; i++ {
			units = append(units, Unit{
				ProductID:   item.ProductID,
				Size:        item.Size,
				Description: item.Title,
				UnitPrice:   item.UnitPrice,
			})
		}
	}
	return units
}

// RawTotal возвращает сумму цен единиц без скидки.
func RawTotal(units []Unit) int64 {
	var total int64
	for _, u := range units {
		total += u.UnitPrice
	}
	return total
}

// Discount применяет процентную скидку с округлением половины вверх.
func Discount(rawTotal int64, percent int) int64 {
	return divRoundHalfUp(rawTotal*int64(100-percent), 100)
}

// Split раскладывает finalTotal по единицам пропорционально цене (коэффициент finalTotal/rawTotal)
// и добавляет строку доставки на shippingFee.
func Split(units []Unit, finalTotal, shippingFee int64) ([]Line, error) {
	if finalTotal < 0 || shippingFee < 0 {
		return nil, &models.InvariantViolationError{
			Invariant: "receipt-non-negative",
			Detail:    fmt.Sprintf("final=%d shipping=%d", finalTotal, shippingFee),
		}
	}

	rawTotal := RawTotal(units)
	remaining := finalTotal
	lines := make([]Line, 0, len(units)+1)

	for idx, u := range units {
		var amount int64
		if idx == len(units)-1 {
			amount = remaining
		} else {
			if rawTotal > 0 {
				amount = divRoundHalfUp(u.UnitPrice*finalTotal, rawTotal)
			}
			if amount > remaining {
				amount = remaining
			}
		}
		remaining -= amount

		lines = append(lines, Line{
			ProductID:   u.ProductID,
			Size:        u.Size,
			Description: u.Description,
			Amount:      amount,
			Kind:        KindCommodity,
		})
	}

	if remaining != 0 {
		return nil, &models.InvariantViolationError{
			Invariant: "receipt-remainder",
			Detail:    fmt.Sprintf("нераспределённый остаток %d при итоге %d", remaining, finalTotal),
		}
	}

	lines = append(lines, Line{
		Description: ShippingDescription,
		Amount:      shippingFee,
		Kind:        KindService,
	})

	if sum := Sum(lines); sum != finalTotal+shippingFee {
		return nil, &models.InvariantViolationError{
			Invariant: "receipt-sum",
			Detail:    fmt.Sprintf("сумма строк %d, ожидалось %d", sum, finalTotal+shippingFee),
		}
	}

	return lines, nil
}

// Sum возвращает сумму всех строк чека.
func Sum(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.Amount
	}
	return total
}

// divRoundHalfUp делит неотрицательные целые с округлением половины вверх.
func divRoundHalfUp(numerator, denominator int64) int64 {
	return (2*numerator + denominator) / (2 * denominator)
}
