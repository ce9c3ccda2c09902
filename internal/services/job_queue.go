package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Renal37/storefront/internal/logger"
	"go.uber.org/zap"
)

var (
	ErrJobQueueIsFull = errors.New("очередь заданий заполнена")
	ErrJobQueueClosed = errors.New("очередь заданий закрыта")
)

// Job: фоновое задание. Получает контекст очереди, который отменяется при остановке сервиса.
type Job func(ctx context.Context)

// JobQueueService: пул воркеров для действий после фиксации транзакций и периодических задач.
// Проведение заказов через очередь не выполняется.
type JobQueueService struct {
	jobs    chan Job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closing int32
	stop    chan struct{}
	ctx     context.Context
}

// NewJobQueueService запускает workers воркеров над очередью ёмкостью capacity.
func NewJobQueueService(ctx context.Context, capacity, workers int) *JobQueueService {
	service := &JobQueueService{
		jobs: make(chan Job, capacity),
		stop: make(chan struct{}),
		ctx:  ctx,
	}
	service.start(ctx, workers)

	return service
}

func (jqs *JobQueueService) start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		jqs.wg.Add(1)

		go func(workerID int) {
			defer jqs.wg.Done()

			for {
				select {
				case job, ok := <-jqs.jobs:
					if !ok {
						return
					}
					jqs.run(ctx, workerID, job)
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}
}

// run выполняет задание. Паника в задании не должна останавливать воркер.
func (jqs *JobQueueService) run(ctx context.Context, workerID int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("job panicked", zap.Int("worker", workerID), zap.Any("panic", r))
		}
	}()

	job(ctx)
}

// Enqueue добавляет задание без блокировки вызывающего.
func (jqs *JobQueueService) Enqueue(job Job) error {
	jqs.mu.RLock()
	defer jqs.mu.RUnlock()

	if atomic.LoadInt32(&jqs.closing) == 1 {
		return ErrJobQueueClosed
	}

	select {
	case jqs.jobs <- job:
		return nil
	default:
		return ErrJobQueueIsFull
	}
}

// RunEvery выполняет job сразу и затем каждые interval в отдельной горутине, минуя буфер очереди.
// Заполненная очередь не останавливает периодическое задание. Горутина завершается при Shutdown.
func (jqs *JobQueueService) RunEvery(job Job, interval time.Duration) error {
	jqs.mu.RLock()
	defer jqs.mu.RUnlock()

	if atomic.LoadInt32(&jqs.closing) == 1 {
		return ErrJobQueueClosed
	}

	jqs.wg.Add(1)
	go func() {
		defer jqs.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			jqs.run(jqs.ctx, 0, job)

			select {
			case <-ticker.C:
			case <-jqs.stop:
				return
			case <-jqs.ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Shutdown останавливает периодические задания, закрывает очередь и ждёт, пока воркеры доработают.
func (jqs *JobQueueService) Shutdown() {
	jqs.mu.Lock()
	if !atomic.CompareAndSwapInt32(&jqs.closing, 0, 1) {
		jqs.mu.Unlock()
		return
	}

	close(jqs.stop)
	close(jqs.jobs)
	jqs.mu.Unlock()

	jqs.wg.Wait()
}
