package services

import (
	"context"
	"sync"
	"time"

	"github.com/Renal37/storefront/internal/database"
	"github.com/Renal37/storefront/internal/logger"
	"github.com/Renal37/storefront/internal/metrics"
	"github.com/Renal37/storefront/internal/models"
	"go.uber.org/zap"
)

// EventHandler обрабатывает событие заказа в фоне.
type EventHandler func(ctx context.Context, event models.OrderEvent) error

type eventPublisher interface {
	Dispatch(event models.OrderEvent)
}

type jobEnqueuer interface {
	Enqueue(job Job) error
}

type subscription struct {
	sink    string
	handler EventHandler
}

// EventDispatcher рассылает события заказов обработчикам через очередь заданий.
// Вызывать Dispatch нужно только после фиксации транзакции.
type EventDispatcher struct {
	queue    jobEnqueuer
	mu       sync.RWMutex
	handlers map[models.EventType][]subscription
}

func NewEventDispatcher(queue jobEnqueuer) *EventDispatcher {
	return &EventDispatcher{
		queue:    queue,
		handlers: make(map[models.EventType][]subscription),
	}
}

// Subscribe регистрирует обработчик sink на перечисленные типы событий.
func (d *EventDispatcher) Subscribe(sink string, handler EventHandler, types ...models.EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range types {
		d.handlers[t] = append(d.handlers[t], subscription{sink: sink, handler: handler})
	}
}

// Dispatch ставит по одному заданию на каждый обработчик и не ждёт их выполнения.
func (d *EventDispatcher) Dispatch(event models.OrderEvent) {
	d.mu.RLock()
	subs := d.handlers[event.Type]
	d.mu.RUnlock()

	for _, sub := range subs {
		sub := sub
		err := d.queue.Enqueue(func(ctx context.Context) {
			if err := sub.handler(ctx, event); err != nil {
				metrics.EventsPublished.WithLabelValues(sub.sink, string(event.Type), "error").Inc()
				logger.Log.Error("failed to deliver order event",
					zap.String("sink", sub.sink),
					zap.String("type", string(event.Type)),
					zap.Int64("orderID", event.OrderID),
					zap.Error(err),
				)
				return
			}
			metrics.EventsPublished.WithLabelValues(sub.sink, string(event.Type), "ok").Inc()
		})
		if err != nil {
			metrics.EventsPublished.WithLabelValues(sub.sink, string(event.Type), "dropped").Inc()
			logger.Log.Warn("order event dropped",
				zap.String("sink", sub.sink),
				zap.String("type", string(event.Type)),
				zap.Int64("orderID", event.OrderID),
				zap.Error(err),
			)
		}
	}
}

// LogSink пишет событие в журнал. Подходит как обработчик по умолчанию.
func LogSink(_ context.Context, event models.OrderEvent) error {
	logger.Log.Info("order event",
		zap.String("type", string(event.Type)),
		zap.Int64("orderID", event.OrderID),
		zap.String("status", string(event.Status)),
		zap.String("source", string(event.Source)),
		zap.Int64("total", event.Total),
	)
	return nil
}

// AllEventTypes перечисляет все типы событий заказа.
var AllEventTypes = []models.EventType{
	models.EventOrderPaid,
	models.EventOrderCancelled,
	models.EventOrderCompleted,
	models.EventOrderTelegramProvided,
}

func newOrderEvent(eventType models.EventType, order *database.OrderDB, source models.SettlementSource, now time.Time) models.OrderEvent {
	event := models.OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		Source:     source,
		Status:     order.Status.OrderStatus,
		Total:      order.Total,
		FullName:   order.FullName,
		Email:      order.Email,
		Phone:      order.Phone,
		Items:      order.Items,
		OccurredAt: now.UTC(),
	}
	if order.Telegram != nil {
		event.Telegram = *order.Telegram
	}
	return event
}
