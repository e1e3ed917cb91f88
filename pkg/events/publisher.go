// Package events implements decision event publishing to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Event types
const (
	EventTransferAdmitted = "transfer.admitted"
	EventTransferFlagged  = "transfer.flagged"
	EventTransferBlocked  = "transfer.blocked"
)

// ExchangeDecisions carries all gate outcomes.
const ExchangeDecisions = "risk.decisions"

// Event represents a domain event.
type Event struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	AggregateID string                 `json:"aggregate_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Version     int                    `json:"version"`
	Data        map[string]interface{} `json:"data"`
}

// NewEvent creates a new event.
func NewEvent(eventType, aggregateID string, data map[string]interface{}) *Event {
	return &Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		Source:      "risk-engine",
		AggregateID: aggregateID,
		Timestamp:   time.Now().UTC(),
		Version:     1,
		Data:        data,
	}
}

// NewDecisionEvent creates a gate-outcome event.
func NewDecisionEvent(eventType, contextID, decisionID string, score float64, tier, recommendation string) *Event {
	return NewEvent(eventType, contextID, map[string]interface{}{
		"decision_id":    decisionID,
		"context_id":     contextID,
		"score":          score,
		"classification": tier,
		"recommendation": recommendation,
	})
}

// Publisher interface for event publishing.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// NopPublisher discards events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
func (NopPublisher) Close() error                          { return nil }

// RabbitMQPublisher implements Publisher for RabbitMQ.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger

	mu       sync.RWMutex
	closed   bool
	confirms chan amqp.Confirmation
}

// PublisherConfig for the RabbitMQ connection.
type PublisherConfig struct {
	URL            string
	PublishTimeout time.Duration
	EnableConfirms bool
}

// DefaultPublisherConfig returns sensible defaults.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:            url,
		PublishTimeout: 5 * time.Second,
		EnableConfirms: true,
	}
}

// NewRabbitMQPublisher creates a new RabbitMQ publisher.
func NewRabbitMQPublisher(cfg PublisherConfig, logger *slog.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		ExchangeDecisions,
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", ExchangeDecisions, err)
	}

	p := &RabbitMQPublisher{
		conn:    conn,
		channel: channel,
		logger:  logger,
	}

	if cfg.EnableConfirms {
		if err := channel.Confirm(false); err != nil {
			return nil, fmt.Errorf("failed to enable confirms: %w", err)
		}
		p.confirms = channel.NotifyPublish(make(chan amqp.Confirmation, 100))
	}

	logger.Info("RabbitMQ publisher initialized")

	return p, nil
}

// Publish sends the event with its type as routing key.
func (p *RabbitMQPublisher) Publish(ctx context.Context, event *Event) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		ContentType:  "application/json",
		MessageId:    event.ID,
		Type:         event.Type,
		Body:         body,
	}

	err = p.channel.PublishWithContext(
		ctx,
		ExchangeDecisions,
		event.Type,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	if p.confirms != nil {
		select {
		case confirm := <-p.confirms:
			if !confirm.Ack {
				return fmt.Errorf("message not acknowledged")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.logger.Debug("event published",
		"event_id", event.ID,
		"type", event.Type,
	)

	return nil
}

// Close closes the connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
