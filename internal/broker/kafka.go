// Package broker публикует события заказов в Kafka.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Renal37/storefront/internal/models"
	"github.com/segmentio/kafka-go"
)

const writeTimeout = 10 * time.Second

type Client struct {
	Brokers []string
}

// NewClient разбирает список брокеров через запятую. Пустой список означает, что Kafka не используется.
func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c *Client) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: writeTimeout,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEventSink пишет события заказов с ключом по номеру заказа,
// поэтому события одного заказа попадают в одну партицию.
type OrderEventSink struct {
	writer messageWriter
}

func NewOrderEventSink(writer messageWriter) *OrderEventSink {
	return &OrderEventSink{writer: writer}
}

func (s *OrderEventSink) Publish(ctx context.Context, event models.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	if err := s.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write event %s for order %d: %w", event.Type, event.OrderID, err)
	}

	return nil
}

func (s *OrderEventSink) Close() error {
	return s.writer.Close()
}
