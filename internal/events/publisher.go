package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultCheckoutTopic = "cart-checkouts"
	CheckoutEventType    = "cart.checked_out"
)

// CheckoutEvent announces an order placed from a cart.
type CheckoutEvent struct {
	EventID        string                 `json:"eventId"`
	UserID         string                 `json:"userId"`
	Message        string                 `json:"message"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
	LineItems      []domain.OrderLineItem `json:"lineItems"`
	TotalAmount    float64                `json:"totalAmount"`
	CompletedAt    time.Time              `json:"completedAt"`
}

func NewCheckoutEvent(req domain.OrderRequest, message string, completedAt time.Time) CheckoutEvent {
	var total float64
	for _, li := range req.LineItems {
		total += li.Price * float64(li.Quantity)
	}
	lines := make([]domain.OrderLineItem, len(req.LineItems))
	copy(lines, req.LineItems)

	return CheckoutEvent{
		EventID:        uuid.NewString(),
		UserID:         req.UserID,
		Message:        message,
		IdempotencyKey: req.IdempotencyKey,
		LineItems:      lines,
		TotalAmount:    total,
		CompletedAt:    completedAt.UTC(),
	}
}

type Publisher interface {
	PublishCheckout(ctx context.Context, event CheckoutEvent) error
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultCheckoutTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

// PublishCheckout keys messages by user so one user's checkouts stay ordered.
func (p *KafkaPublisher) PublishCheckout(ctx context.Context, event CheckoutEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal checkout event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(CheckoutEventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish checkout event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []CheckoutEvent
	err    error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (m *MemoryPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryPublisher) PublishCheckout(_ context.Context, event CheckoutEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryPublisher) Events() []CheckoutEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CheckoutEvent, len(m.events))
	copy(out, m.events)
	return out
}
