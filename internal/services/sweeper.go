package services

import (
	"context"
	"time"

	"github.com/Renal37/storefront/internal/database"
	"github.com/Renal37/storefront/internal/logger"
	"github.com/Renal37/storefront/internal/metrics"
	"github.com/Renal37/storefront/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultPendingTimeout = 15 * time.Minute
	DefaultSweepInterval  = time.Minute
)

type sweeperStorage interface {
	CancelExpiredOrders(ctx context.Context, createdBefore time.Time) ([]int64, error)
}

type jobScheduler interface {
	RunEvery(job Job, interval time.Duration) error
}

// Sweeper периодически отменяет заказы, которые слишком долго ждут оплаты.
type Sweeper struct {
	storage  sweeperStorage
	queue    jobScheduler
	events   eventPublisher
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(storage sweeperStorage, queue jobScheduler, events eventPublisher, timeout, interval time.Duration) *Sweeper {
	return &Sweeper{
		storage:  storage,
		queue:    queue,
		events:   events,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
	}
}

// Sweep одним условным обновлением отменяет pending-заказы старше таймаута и возвращает их номера.
func (s *Sweeper) Sweep(ctx context.Context) ([]int64, error) {
	now := s.now()

	ids, err := s.storage.CancelExpiredOrders(ctx, now.Add(-s.timeout))
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		metrics.Transitions.WithLabelValues(string(models.StatusCancelled), string(models.SourceSweeper)).Inc()
		s.events.Dispatch(newOrderEvent(models.EventOrderCancelled, &database.OrderDB{
			ID:     id,
			Status: database.Status(models.StatusCancelled),
		}, models.SourceSweeper, now))
	}

	return ids, nil
}

// Start запускает проходы каждые interval, первый проход выполняется сразу.
func (s *Sweeper) Start() error {
	return s.queue.RunEvery(s.run, s.interval)
}

func (s *Sweeper) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	ids, err := s.Sweep(ctx)
	if err != nil {
		logger.Log.Error("sweeper failed", zap.Error(err))
	} else if len(ids) > 0 {
		logger.Log.Info("expired orders cancelled", zap.Int64s("orderIDs", ids))
	}
}
