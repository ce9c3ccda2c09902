package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Renal37/storefront/internal/database"
	"github.com/Renal37/storefront/internal/logger"
	"github.com/Renal37/storefront/internal/metrics"
	"github.com/Renal37/storefront/internal/models"
	"go.uber.org/zap"
)

var ErrPaymentNotConfirmed = errors.New("платёж не подтверждён шлюзом")

// SettlementService переводит заказы между статусами условными обновлениями.
// Писатели синхронизируются только блокировками в базе данных.
type SettlementService struct {
	storage        settlementStorage
	gateway        paymentGateway
	events         eventPublisher
	verifyFallback bool
	now            func() time.Time
}

type settlementStorage interface {
	InTx(ctx context.Context, fn func(tx database.Tx) error) error
	FindOrder(ctx context.Context, orderID int64) (*database.OrderDB, error)
	TransitionOrder(ctx context.Context, orderID int64, from, to database.OrderStatusDB) (*database.OrderDB, error)
	RecordSettlementFailure(ctx context.Context, orderID int64, source models.SettlementSource, reason string) error
}

// NewSettlementService создаёт сервис. При verifyFallback клиентский отчёт об оплате
// сверяется со статусом платежа в шлюзе.
func NewSettlementService(storage settlementStorage, gateway paymentGateway, events eventPublisher, verifyFallback bool) *SettlementService {
	return &SettlementService{
		storage:        storage,
		gateway:        gateway,
		events:         events,
		verifyFallback: verifyFallback,
		now:            time.Now,
	}
}

type stockKey struct {
	productID int64
	size      string
}

type stockDemand struct {
	stockKey
	quantity int
}

// stockDemands суммирует количество по (товар, размер) и сортирует по товару, затем по размеру.
func stockDemands(items []models.OrderItem) []stockDemand {
	totals := make(map[stockKey]int)
	for _, item := range items {
		totals[stockKey{productID: item.ProductID, size: item.Size}] += item.Quantity
	}

	demands := make([]stockDemand, 0, len(totals))
	for key, qty := range totals {
		demands = append(demands, stockDemand{stockKey: key, quantity: qty})
	}

	sort.Slice(demands, func(i, j int) bool {
		if demands[i].productID != demands[j].productID {
			return demands[i].productID < demands[j].productID
		}
		return demands[i].size < demands[j].size
	})

	return demands
}

// MarkPaid проводит оплату: pending -> paid, списание остатков и учёт промокода в одной транзакции.
// Повторный вызов для уже не pending заказа ничего не меняет.
func (s *SettlementService) MarkPaid(ctx context.Context, orderID int64, source models.SettlementSource) error {
	if source == models.SourceSweeper {
		return &models.InvariantViolationError{Invariant: "sweeper-cannot-pay", Detail: "очистка может только отменять заказы"}
	}

	var paid *database.OrderDB

	err := s.storage.InTx(ctx, func(tx database.Tx) error {
		paid = nil

		order, err := tx.TransitionOrder(ctx, orderID, database.Status(models.StatusPending), database.Status(models.StatusPaid))
		if err != nil {
			return err
		}
		if order == nil {
			return nil
		}

		for _, demand := range stockDemands(order.Items) {
			available, err := tx.LockStock(ctx, demand.productID, demand.size)
			if err != nil {
				return err
			}
			if available < demand.quantity {
				return &models.StockInsufficientError{
					ProductID: demand.productID,
					Size:      demand.size,
					Requested: demand.quantity,
					Available: available,
				}
			}
			if err := tx.DecrementStock(ctx, demand.productID, demand.size, demand.quantity); err != nil {
				return err
			}
		}

		if order.Promo != nil {
			email := strings.ToLower(order.Email)
			if err := tx.LockBuyer(ctx, email, order.Phone); err != nil {
				return err
			}
			used, err := tx.HasPaidOrderWithPromo(ctx, email, order.Phone, order.ID)
			if err != nil {
				return err
			}
			if used {
				return &models.ConflictError{Reason: "покупатель уже оплатил другой заказ с промокодом", Err: ErrPromoRedeemedByContact}
			}

			promo, err := tx.LockPromo(ctx, *order.Promo)
			if err != nil {
				return err
			}
			if promo == nil {
				return &models.ConflictError{Reason: fmt.Sprintf("промокод %s удалён до оплаты", *order.Promo)}
			}
			if promo.Exhausted() {
				return &models.ConflictError{Reason: fmt.Sprintf("промокод %s уже использован другим заказом", promo.Code), Err: ErrPromoAlreadyUsed}
			}
			if err := tx.IncrementPromoUsage(ctx, promo.Code); err != nil {
				return err
			}
		}

		paid = order
		return nil
	})
	if err != nil {
		s.escalate(ctx, orderID, source, err)
		return err
	}

	if paid == nil {
		return s.noop(ctx, orderID, models.StatusPaid, source)
	}

	metrics.Transitions.WithLabelValues(string(models.StatusPaid), string(source)).Inc()
	logger.Log.Info("order paid", zap.Int64("orderID", orderID), zap.String("source", string(source)))
	s.events.Dispatch(newOrderEvent(models.EventOrderPaid, paid, source, s.now()))

	return nil
}

// escalate оставляет след для ручной сверки, если оплаченный заказ не удалось провести.
func (s *SettlementService) escalate(ctx context.Context, orderID int64, source models.SettlementSource, cause error) {
	var (
		stockErr    *models.StockInsufficientError
		conflictErr *models.ConflictError
		reason      string
	)

	switch {
	case errors.As(cause, &stockErr):
		reason = "stock_insufficient"
	case errors.As(cause, &conflictErr):
		reason = "promo_conflict"
	default:
		logger.Log.Error("failed to settle payment",
			zap.Int64("orderID", orderID),
			zap.String("source", string(source)),
			zap.Error(cause),
		)
		return
	}

	metrics.SettlementFailures.WithLabelValues(reason, string(source)).Inc()
	logger.Log.Error("paid order needs manual reconciliation",
		zap.Int64("orderID", orderID),
		zap.String("source", string(source)),
		zap.String("reason", reason),
		zap.Error(cause),
	)

	if err := s.storage.RecordSettlementFailure(ctx, orderID, source, cause.Error()); err != nil {
		logger.Log.Error("failed to record settlement failure", zap.Int64("orderID", orderID), zap.Error(err))
	}
}

// noop различает отсутствующий заказ и заказ, который уже вышел из ожидаемого статуса.
func (s *SettlementService) noop(ctx context.Context, orderID int64, target models.OrderStatus, source models.SettlementSource) error {
	order, err := s.storage.FindOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return &models.NotFoundError{Entity: "заказ", ID: strconv.FormatInt(orderID, 10)}
	}

	logger.Log.Debug("transition skipped",
		zap.Int64("orderID", orderID),
		zap.String("target", string(target)),
		zap.String("current", string(order.Status.OrderStatus)),
		zap.String("source", string(source)),
	)
	return nil
}

// Cancel переводит pending -> cancelled. Остатки и промокоды не затрагиваются.
func (s *SettlementService) Cancel(ctx context.Context, orderID int64, source models.SettlementSource) error {
	order, err := s.storage.TransitionOrder(ctx, orderID, database.Status(models.StatusPending), database.Status(models.StatusCancelled))
	if err != nil {
		return err
	}
	if order == nil {
		return s.noop(ctx, orderID, models.StatusCancelled, source)
	}

	metrics.Transitions.WithLabelValues(string(models.StatusCancelled), string(source)).Inc()
	logger.Log.Info("order cancelled", zap.Int64("orderID", orderID), zap.String("source", string(source)))
	s.events.Dispatch(newOrderEvent(models.EventOrderCancelled, order, source, s.now()))

	return nil
}

// Complete отмечает выдачу оплаченного заказа.
func (s *SettlementService) Complete(ctx context.Context, orderID int64) error {
	order, err := s.storage.TransitionOrder(ctx, orderID, database.Status(models.StatusPaid), database.Status(models.StatusCompleted))
	if err != nil {
		return err
	}
	if order == nil {
		return &models.NotFoundError{Entity: "оплаченный заказ", ID: strconv.FormatInt(orderID, 10)}
	}

	metrics.Transitions.WithLabelValues(string(models.StatusCompleted), string(models.SourceAdmin)).Inc()
	logger.Log.Info("order completed", zap.Int64("orderID", orderID))
	s.events.Dispatch(newOrderEvent(models.EventOrderCompleted, order, models.SourceAdmin, s.now()))

	return nil
}

// ReportClientStatus принимает отчёт браузера после редиректа со страницы оплаты.
func (s *SettlementService) ReportClientStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	switch status {
	case models.StatusPaid:
		if s.verifyFallback {
			if err := s.confirmPayment(ctx, orderID); err != nil {
				return err
			}
		}
		return s.MarkPaid(ctx, orderID, models.SourceClient)
	case models.StatusCancelled:
		return s.Cancel(ctx, orderID, models.SourceClient)
	default:
		return &models.ValidationError{Field: "status", Message: "допустимые значения: paid cancelled"}
	}
}

// confirmPayment сверяет отчёт клиента со шлюзом. Запрос идёт вне транзакции.
func (s *SettlementService) confirmPayment(ctx context.Context, orderID int64) error {
	order, err := s.storage.FindOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return &models.NotFoundError{Entity: "заказ", ID: strconv.FormatInt(orderID, 10)}
	}
	if order.Status.OrderStatus != models.StatusPending {
		return nil
	}
	if order.PaymentID == nil || *order.PaymentID == "" {
		return &models.ConflictError{Reason: "у заказа нет платежа", Err: ErrPaymentNotConfirmed}
	}

	payment, err := s.gateway.GetPayment(ctx, *order.PaymentID)
	if err != nil {
		return err
	}
	if payment.Status != PaymentStatusSucceeded {
		logger.Log.Warn("client reported unconfirmed payment",
			zap.Int64("orderID", orderID),
			zap.String("paymentStatus", payment.Status),
		)
		return &models.ConflictError{Reason: "платёж в статусе " + payment.Status, Err: ErrPaymentNotConfirmed}
	}

	return nil
}
