package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Renal37/storefront/internal/database"
	"github.com/Renal37/storefront/internal/models"
)

// fakeStore: хранилище в памяти с транзакциями. Транзакции выполняются по одной,
// при ошибке состояние откатывается к снимку.
type fakeStore struct {
	mu       sync.Mutex
	now      func() time.Time
	nextID   int64
	products map[int64]database.ProductDB
	stock    map[stockKey]int
	promos   map[string]database.PromoDB
	orders   map[int64]database.OrderDB
	failures []fakeFailure
	locks    []stockKey
}

type fakeFailure struct {
	orderID int64
	source  models.SettlementSource
	reason  string
}

type fakeSnapshot struct {
	nextID int64
	stock  map[stockKey]int
	promos map[string]database.PromoDB
	orders map[int64]database.OrderDB
}

var fixedNow = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func newFakeStore() *fakeStore {
	return &fakeStore{
		now: func() time.Time { return fixedNow },
		products: map[int64]database.ProductDB{
			1: {ID: 1, Title: "Футболка", Price: 1000},
			2: {ID: 2, Title: "Кепка", Price: 500},
			3: {ID: 3, Title: "Значок", Price: 333},
		},
		stock: map[stockKey]int{
			{productID: 1, size: "M"}: 10,
			{productID: 1, size: "L"}: 10,
			{productID: 2, size: "L"}: 10,
			{productID: 3, size: "ONE"}: 10,
		},
		promos: map[string]database.PromoDB{
			"SALE10": {Code: "SALE10", DiscountPercent: 10},
			"SALE15": {Code: "SALE15", DiscountPercent: 15},
			"ONCE":   {Code: "ONCE", DiscountPercent: 50, SingleUse: true},
			"OLD":    {Code: "OLD", DiscountPercent: 20, ExpiresAt: ptr(fixedNow.Add(-time.Hour))},
		},
		orders: make(map[int64]database.OrderDB),
	}
}

func ptr[T any](v T) *T {
	return &v
}

func (s *fakeStore) snapshot() fakeSnapshot {
	snap := fakeSnapshot{
		nextID: s.nextID,
		stock:  make(map[stockKey]int, len(s.stock)),
		promos: make(map[string]database.PromoDB, len(s.promos)),
		orders: make(map[int64]database.OrderDB, len(s.orders)),
	}
	for k, v := range s.stock {
		snap.stock[k] = v
	}
	for k, v := range s.promos {
		snap.promos[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	return snap
}

func (s *fakeStore) restore(snap fakeSnapshot) {
	s.nextID = snap.nextID
	s.stock = snap.stock
	s.promos = snap.promos
	s.orders = snap.orders
}

func (s *fakeStore) InTx(_ context.Context, fn func(tx database.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&fakeTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// addOrder сохраняет заказ напрямую, минуя оформление.
func (s *fakeStore) addOrder(order database.OrderDB) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	order.ID = s.nextID
	if order.Status.OrderStatus == "" {
		order.Status = database.Status(models.StatusPending)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	s.orders[order.ID] = order
	return order.ID
}

func (s *fakeStore) order(id int64) database.OrderDB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *fakeStore) stockOf(productID int64, size string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[stockKey{productID: productID, size: size}]
}

func (s *fakeStore) promoUsage(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promos[code].UsageCount
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *fakeStore) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failures)
}

func (s *fakeStore) FindOrder(_ context.Context, orderID int64) (*database.OrderDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (s *fakeStore) TransitionOrder(ctx context.Context, orderID int64, from, to database.OrderStatusDB) (*database.OrderDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).TransitionOrder(ctx, orderID, from, to)
}

func (s *fakeStore) SetTelegram(_ context.Context, orderID int64, telegram string) (*database.OrderDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || order.Status.OrderStatus != models.StatusPaid || (order.Telegram != nil && *order.Telegram != "") {
		return nil, nil
	}
	order.Telegram = &telegram
	s.orders[orderID] = order
	return &order, nil
}

func (s *fakeStore) SetPaymentID(_ context.Context, orderID int64, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("заказ %d не найден", orderID)
	}
	order.PaymentID = &paymentID
	s.orders[orderID] = order
	return nil
}

func (s *fakeStore) CancelExpiredOrders(_ context.Context, createdBefore time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := make(map[int64]bool)
	for _, f := range s.failures {
		failed[f.orderID] = true
	}

	var ids []int64
	for id, order := range s.orders {
		if order.Status.OrderStatus == models.StatusPending && order.CreatedAt.Before(createdBefore) && !failed[id] {
			order.Status = database.Status(models.StatusCancelled)
			s.orders[id] = order
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) RecordSettlementFailure(_ context.Context, orderID int64, source models.SettlementSource, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, fakeFailure{orderID: orderID, source: source, reason: reason})
	return nil
}

func (s *fakeStore) FindPromo(_ context.Context, code string) (*database.PromoDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo, ok := s.promos[code]
	if !ok {
		return nil, nil
	}
	return &promo, nil
}

// fakeTx работает под блокировкой, которую держит InTx.
type fakeTx struct {
	s *fakeStore
}

func (tx *fakeTx) FindProduct(_ context.Context, productID int64) (*database.ProductDB, error) {
	product, ok := tx.s.products[productID]
	if !ok {
		return nil, nil
	}
	return &product, nil
}

func (tx *fakeTx) HasPaidOrderWithPromo(_ context.Context, email, phone string, exceptOrderID int64) (bool, error) {
	for _, order := range tx.s.orders {
		if order.Promo == nil || order.ID == exceptOrderID {
			continue
		}
		if order.Status.OrderStatus != models.StatusPaid && order.Status.OrderStatus != models.StatusCompleted {
			continue
		}
		if strings.ToLower(order.Email) == email || order.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (tx *fakeTx) LockBuyer(_ context.Context, _, _ string) error {
	return nil
}

func (tx *fakeTx) LockPromo(_ context.Context, code string) (*database.PromoDB, error) {
	promo, ok := tx.s.promos[code]
	if !ok {
		return nil, nil
	}
	return &promo, nil
}

func (tx *fakeTx) IncrementPromoUsage(_ context.Context, code string) error {
	promo, ok := tx.s.promos[code]
	if !ok {
		return fmt.Errorf("промокод %s не найден", code)
	}
	promo.UsageCount++
	tx.s.promos[code] = promo
	return nil
}

func (tx *fakeTx) InsertOrder(_ context.Context, order database.OrderDB) (*database.OrderDB, error) {
	tx.s.nextID++
	order.ID = tx.s.nextID
	order.Status = database.Status(models.StatusPending)
	order.CreatedAt = tx.s.now()
	tx.s.orders[order.ID] = order
	return &order, nil
}

func (tx *fakeTx) TransitionOrder(_ context.Context, orderID int64, from, to database.OrderStatusDB) (*database.OrderDB, error) {
	order, ok := tx.s.orders[orderID]
	if !ok || order.Status != from {
		return nil, nil
	}
	order.Status = to
	tx.s.orders[orderID] = order
	return &order, nil
}

func (tx *fakeTx) LockStock(_ context.Context, productID int64, size string) (int, error) {
	key := stockKey{productID: productID, size: size}
	tx.s.locks = append(tx.s.locks, key)
	return tx.s.stock[key], nil
}

func (tx *fakeTx) DecrementStock(_ context.Context, productID int64, size string, quantity int) error {
	key := stockKey{productID: productID, size: size}
	if tx.s.stock[key] < quantity {
		return &models.StockInsufficientError{ProductID: productID, Size: size, Requested: quantity, Available: tx.s.stock[key]}
	}
	tx.s.stock[key] -= quantity
	return nil
}

// fakeGateway имитирует платёжный шлюз.
type fakeGateway struct {
	mu        sync.Mutex
	created   []PaymentRequest
	createErr error
	getErr    error
	statuses  map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string]string)}
}

func (g *fakeGateway) CreatePayment(_ context.Context, request PaymentRequest) (*Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, request)

	payment := &Payment{ID: fmt.Sprintf("pay-%d", request.OrderID), Status: "pending"}
	payment.Confirmation.Type = "redirect"
	payment.Confirmation.ConfirmationURL = "https://gateway.test/confirm/" + payment.ID
	g.statuses[payment.ID] = payment.Status
	return payment, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, paymentID string) (*Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.getErr != nil {
		return nil, g.getErr
	}
	status, ok := g.statuses[paymentID]
	if !ok {
		return nil, &models.ExternalGatewayError{Op: "get", Err: fmt.Errorf("payment %s not found", paymentID)}
	}
	return &Payment{ID: paymentID, Status: status}, nil
}

// recordingPublisher запоминает события вместо отправки.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (p *recordingPublisher) Dispatch(event models.OrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count(eventType models.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
