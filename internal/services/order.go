package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Renal37/storefront/internal/database"
	"github.com/Renal37/storefront/internal/logger"
	"github.com/Renal37/storefront/internal/metrics"
	"github.com/Renal37/storefront/internal/models"
	"github.com/Renal37/storefront/internal/receipt"
	"github.com/Renal37/storefront/internal/utils"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// DefaultShippingFee: стоимость доставки в копейках.
const DefaultShippingFee int64 = 449

var (
	ErrPromoExpired           = errors.New("срок действия промокода истёк")
	ErrPromoAlreadyUsed       = errors.New("промокод уже использован")
	ErrPromoRedeemedByContact = errors.New("покупатель уже применял промокод")
)

var telegramPattern = regexp.MustCompile(`^@?[a-zA-Z0-9_]{5,32}$`)

// OrderService оформляет заказы и отдаёт их публичное состояние.
type OrderService struct {
	storage     orderStorage
	gateway     paymentGateway
	events      eventPublisher
	validate    *validator.Validate
	shippingFee int64
	now         func() time.Time
}

type orderStorage interface {
	InTx(ctx context.Context, fn func(tx database.Tx) error) error
	FindOrder(ctx context.Context, orderID int64) (*database.OrderDB, error)
	SetTelegram(ctx context.Context, orderID int64, telegram string) (*database.OrderDB, error)
	SetPaymentID(ctx context.Context, orderID int64, paymentID string) error
}

type paymentGateway interface {
	CreatePayment(ctx context.Context, request PaymentRequest) (*Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

func NewOrderService(storage orderStorage, gateway paymentGateway, events eventPublisher, shippingFee int64) *OrderService {
	return &OrderService{
		storage:     storage,
		gateway:     gateway,
		events:      events,
		validate:    newValidator(),
		shippingFee: shippingFee,
		now:         time.Now,
	}
}

// normalizeOrder приводит контакты к каноническому виду: email в нижнем регистре,
// в телефоне только цифры, промокод в верхнем регистре.
func normalizeOrder(request models.OrderRequest) models.OrderRequest {
	request.FullName = strings.TrimSpace(request.FullName)
	request.Email = strings.ToLower(strings.TrimSpace(request.Email))
	request.Phone = strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, request.Phone)
	request.Address = strings.TrimSpace(request.Address)
	request.Promo = strings.ToUpper(strings.TrimSpace(request.Promo))
	request.Items = append([]models.OrderItem(nil), request.Items...)
	for i := range request.Items {
		request.Items[i].Size = strings.TrimSpace(request.Items[i].Size)
	}
	return request
}

func (o *OrderService) validateOrder(request models.OrderRequest) error {
	if err := o.validate.Struct(request); err != nil {
		return toValidationError(err)
	}

	units := 0
	for i, item := range request.Items {
		units += item.Quantity
		if units > models.MaxOrderUnits {
			return &models.ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: fmt.Sprintf("в заказе не больше %d единиц товара", models.MaxOrderUnits),
			}
		}
	}

	if request.ShippingMethod.RequiresAddress() {
		if request.Address == "" {
			return &models.ValidationError{Field: "address", Message: "адрес обязателен для доставки по карте"}
		}
		if request.Coords == nil {
			return &models.ValidationError{Field: "coords", Message: "координаты обязательны для доставки по карте"}
		}
	}

	if !request.AgreePolicy {
		return &models.ValidationError{Field: "agree_policy", Message: "необходимо согласие с политикой"}
	}

	return nil
}

// CreateOrder проверяет запрос, пересчитывает цены по каталогу, сохраняет заказ в pending
// и только после фиксации транзакции создаёт платёж.
func (o *OrderService) CreateOrder(ctx context.Context, request models.OrderRequest) (*models.CreatedOrder, error) {
	request = normalizeOrder(request)
	if err := o.validateOrder(request); err != nil {
		return nil, err
	}

	var (
		created *database.OrderDB
		lines   []receipt.Line
	)

	err := o.storage.InTx(ctx, func(tx database.Tx) error {
		if request.Promo != "" {
			used, err := tx.HasPaidOrderWithPromo(ctx, request.Email, request.Phone, 0)
			if err != nil {
				return err
			}
			if used {
				return &models.ConflictError{Reason: "покупатель уже применял промокод", Err: ErrPromoRedeemedByContact}
			}
		}

		priced := make([]receipt.PricedItem, 0, len(request.Items))
		for i, item := range request.Items {
			product, err := tx.FindProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if product == nil {
				return &models.ValidationError{
					Field:   fmt.Sprintf("items[%d].product_id", i),
					Message: "товар не найден",
				}
			}
			priced = append(priced, receipt.PricedItem{OrderItem: item, Title: product.Title, UnitPrice: product.Price})
		}

		units := receipt.Expand(priced)
		finalTotal := receipt.RawTotal(units)

		var promo *string
		if request.Promo != "" {
			p, err := tx.LockPromo(ctx, request.Promo)
			if err != nil {
				return err
			}
			if err := checkPromo(p, o.now()); err != nil {
				return err
			}
			finalTotal = receipt.Discount(finalTotal, p.DiscountPercent)
			promo = &p.Code
		}

		split, err := receipt.Split(units, finalTotal, o.shippingFee)
		if err != nil {
			return err
		}

		order := database.OrderDB{
			FullName:       request.FullName,
			Email:          request.Email,
			Phone:          request.Phone,
			ShippingMethod: request.ShippingMethod,
			Coords:         request.Coords,
			Promo:          promo,
			Items:          request.Items,
			Total:          receipt.Sum(split),
		}
		if request.Address != "" {
			order.Address = &request.Address
		}

		inserted, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}

		created, lines = inserted, split
		return nil
	})
	if err != nil {
		var invariantErr *models.InvariantViolationError
		if errors.As(err, &invariantErr) {
			logger.Log.Error("order rejected by invariant", zap.String("invariant", invariantErr.Invariant), zap.Error(err))
		}
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	logger.Log.Info("order created",
		zap.Int64("orderID", created.ID),
		zap.Int64("total", created.Total),
		zap.Int("lines", len(lines)),
	)

	payment, err := o.gateway.CreatePayment(ctx, PaymentRequest{
		OrderID: created.ID,
		Amount:  created.Total,
		Email:   created.Email,
		Lines:   lines,
	})
	if err != nil {
		logger.Log.Error("failed to create payment, order stays pending",
			zap.Int64("orderID", created.ID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := o.storage.SetPaymentID(ctx, created.ID, payment.ID); err != nil {
		logger.Log.Error("failed to store payment id",
			zap.Int64("orderID", created.ID),
			zap.String("paymentID", payment.ID),
			zap.Error(err),
		)
	}

	return &models.CreatedOrder{
		ID:              created.ID,
		CreatedAt:       utils.RFC3339Date{Time: created.CreatedAt},
		Total:           created.Total,
		ConfirmationURL: payment.Confirmation.ConfirmationURL,
	}, nil
}

// checkPromo проверяет найденный промокод. Отсутствующий код считается ошибкой ввода, а не конфликтом.
func checkPromo(promo *database.PromoDB, now time.Time) error {
	if promo == nil {
		return &models.ValidationError{Field: "promo", Message: "промокод не найден"}
	}
	if promo.Expired(now) {
		return &models.ConflictError{Reason: "срок действия промокода истёк", Err: ErrPromoExpired}
	}
	if promo.Exhausted() {
		return &models.ConflictError{Reason: "промокод уже использован", Err: ErrPromoAlreadyUsed}
	}
	return nil
}

func (o *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.OrderView, error) {
	order, err := o.storage.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &models.NotFoundError{Entity: "заказ", ID: strconv.FormatInt(orderID, 10)}
	}

	view := &models.OrderView{
		Status: order.Status.OrderStatus,
		Total:  order.Total,
	}
	if order.Telegram != nil && *order.Telegram != "" {
		view.Telegram = order.Telegram
	}

	return view, nil
}

// SetTelegram сохраняет ник покупателя для оплаченного заказа. Ник записывается один раз.
func (o *OrderService) SetTelegram(ctx context.Context, orderID int64, handle string) error {
	handle = strings.TrimSpace(handle)
	if !telegramPattern.MatchString(handle) {
		return &models.ValidationError{Field: "telegram", Message: "ник должен состоять из 5-32 латинских букв, цифр или _"}
	}
	handle = strings.TrimPrefix(handle, "@")

	order, err := o.storage.SetTelegram(ctx, orderID, handle)
	if err != nil {
		return err
	}
	if order == nil {
		return &models.NotFoundError{Entity: "оплаченный заказ без telegram", ID: strconv.FormatInt(orderID, 10)}
	}

	logger.Log.Info("telegram saved", zap.Int64("orderID", orderID))
	o.events.Dispatch(newOrderEvent(models.EventOrderTelegramProvided, order, models.SourceClient, o.now()))

	return nil
}
