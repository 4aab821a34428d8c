// Package notify emits user-facing events when a job reaches a terminal
// status. Events go to a durable RabbitMQ queue consumed by the notification
// collaborator; undeliverable messages dead-letter instead of vanishing.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"reelsmith/internal/domain"
)

// Event summarizes one finished job.
type Event struct {
	JobID     string           `json:"job_id"`
	UserID    string           `json:"user_id"`
	Kind      domain.JobKind   `json:"kind"`
	Status    domain.JobStatus `json:"status"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// Notifier is what the orchestrator depends on.
type Notifier interface {
	JobFinished(ctx context.Context, event Event) error
}

// Publisher sends events over AMQP.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewPublisher connects and declares the queue topology: a durable main
// queue that dead-letters rejected messages to <queue>.dlq.
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}

	dlq := queue + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare dlq: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare queue: %w", err)
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) JobFinished(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NoopNotifier is used when no broker is configured (local development).
type NoopNotifier struct{}

func (NoopNotifier) JobFinished(ctx context.Context, event Event) error { return nil }

var (
	_ Notifier = (*Publisher)(nil)
	_ Notifier = NoopNotifier{}
)
