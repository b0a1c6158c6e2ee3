package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// EventType identifies a checkout event.
type EventType string

const (
	EventTypeOrderCreated     EventType = "order.created"
	EventTypeOrderConfirmed   EventType = "order.confirmed"
	EventTypeOrderCancelled   EventType = "order.cancelled"
	EventTypeStatusChanged    EventType = "order.status_changed"
	EventTypePaymentFailed    EventType = "payment.failed"
	EventTypeInvoiceGenerated EventType = "invoice.generated"
	EventTypeReceiptIssued    EventType = "receipt.issued"
	EventTypeLowStock         EventType = "inventory.low_stock"
)

// Event is the envelope written to the notification sink. Delivery is
// at-most-once and never gates the business transaction.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	OrderID   string          `json:"order_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher emits typed checkout events to zero or more consumers.
type Publisher interface {
	OrderCreated(ctx context.Context, order *models.Order) error
	OrderConfirmed(ctx context.Context, order *models.Order) error
	OrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error
	OrderCancelled(ctx context.Context, order *models.Order, reason string) error
	PaymentFailed(ctx context.Context, order *models.Order, reason string) error
	InvoiceGenerated(ctx context.Context, invoice *models.Invoice) error
	ReceiptIssued(ctx context.Context, receipt *models.Receipt) error
	LowStock(ctx context.Context, productID string, remaining int) error
}

// KafkaPublisher publishes checkout events to Kafka.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a Kafka-backed event publisher.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		topic:  cfg.EventsTopic,
		logger: logger,
	}
}

func (p *KafkaPublisher) OrderCreated(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return p.publish(ctx, &Event{
		ID:        newEventID(),
		Type:      EventTypeOrderCreated,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (p *KafkaPublisher) OrderConfirmed(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return p.publish(ctx, &Event{
		ID:        newEventID(),
		Type:      EventTypeOrderConfirmed,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (p *KafkaPublisher) OrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	payload := struct {
		PreviousStatus models.OrderStatus `json:"previous_status"`
		NewStatus      models.OrderStatus `json:"new_status"`
	}{previous, order.Status}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.publish(ctx, &Event{
		ID:        newEventID(),
		Type:      EventTypeStatusChanged,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (p *KafkaPublisher) OrderCancelled(ctx context.Context, order *models.Order, reason string) error {
	payload := struct {
		Reason string `json:"reason"`
	}{reason}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.publish(ctx, &Event{
		ID:        newEventID(),
		Type:      EventTypeOrderCancelled,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (p *KafkaPublisher) PaymentFailed(ctx context.Context, order *models.Order, reason string) error {
	payload := struct {
		Reason string       `json:"reason"`
		Total  models.Money `json:"total"`
	}{reason, order.Total}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.publish(ctx, &Event{
		ID:        newEventID(),
		Type:      EventTypePaymentFailed,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (p *KafkaPublisher) InvoiceGenerated(ctx context.Context, invoice *models.Invoice) error {
	data, err := json.Marshal(invoice)
	if err != nil {
		return err
	}
	return p.publish(ctx, &Event{
		ID:        newEventID(),
		Type:      EventTypeInvoiceGenerated,
		OrderID:   invoice.OrderID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (p *KafkaPublisher) ReceiptIssued(ctx context.Context, receipt *models.Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	return p.publish(ctx, &Event{
		ID:        newEventID(),
		Type:      EventTypeReceiptIssued,
		OrderID:   receipt.OrderID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (p *KafkaPublisher) LowStock(ctx context.Context, productID string, remaining int) error {
	payload := struct {
		ProductID string `json:"product_id"`
		Remaining int    `json:"remaining"`
	}{productID, remaining}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.publish(ctx, &Event{
		ID:        newEventID(),
		Type:      EventTypeLowStock,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, event *Event) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := event.OrderID
	if key == "" {
		key = event.ID
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventData,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("order_id", event.OrderID),
	)
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func newEventID() string {
	return "evt_" + uuid.NewString()
}

// MockPublisher records events in memory for tests. Safe for concurrent
// publishers; read Events only after they finish.
type MockPublisher struct {
	mu     sync.Mutex
	Events []*Event
}

var _ Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Events: make([]*Event, 0)}
}

func (m *MockPublisher) record(eventType EventType, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, &Event{
		ID:        newEventID(),
		Type:      eventType,
		OrderID:   orderID,
		Timestamp: time.Now(),
	})
	return nil
}

func (m *MockPublisher) OrderCreated(ctx context.Context, order *models.Order) error {
	return m.record(EventTypeOrderCreated, order.ID)
}

func (m *MockPublisher) OrderConfirmed(ctx context.Context, order *models.Order) error {
	return m.record(EventTypeOrderConfirmed, order.ID)
}

func (m *MockPublisher) OrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	return m.record(EventTypeStatusChanged, order.ID)
}

func (m *MockPublisher) OrderCancelled(ctx context.Context, order *models.Order, reason string) error {
	return m.record(EventTypeOrderCancelled, order.ID)
}

func (m *MockPublisher) PaymentFailed(ctx context.Context, order *models.Order, reason string) error {
	return m.record(EventTypePaymentFailed, order.ID)
}

func (m *MockPublisher) InvoiceGenerated(ctx context.Context, invoice *models.Invoice) error {
	return m.record(EventTypeInvoiceGenerated, invoice.OrderID)
}

func (m *MockPublisher) ReceiptIssued(ctx context.Context, receipt *models.Receipt) error {
	return m.record(EventTypeReceiptIssued, receipt.OrderID)
}

func (m *MockPublisher) LowStock(ctx context.Context, productID string, remaining int) error {
	return m.record(EventTypeLowStock, "")
}

// TypesSeen returns the event types recorded, in order.
func (m *MockPublisher) TypesSeen() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Type
	}
	return out
}
