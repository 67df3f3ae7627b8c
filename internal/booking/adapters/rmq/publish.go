package rmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/rabbitmq"
)

type rmqChanneler interface {
	Channel() (*amqp.Channel, error)
}

// Publisher emits booking status events and notification dispatches onto
// the booking topic exchange.
type Publisher struct {
	rmq    rmqChanneler
	logger *slog.Logger
}

func NewPublisher(rmq rmqChanneler, logger *slog.Logger) *Publisher {
	return &Publisher{rmq: rmq, logger: logger}
}

// PublishStatus publishes booking.status.{booking_id} messages.
func (p *Publisher) PublishStatus(ctx context.Context, bookingID, status, customerID string) error {
	msg := map[string]any{
		"booking_id":  bookingID,
		"status":      status,
		"customer_id": customerID,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	key := fmt.Sprintf("booking.status.%s", bookingID)
	if err := p.publish(ctx, key, msg); err != nil {
		return err
	}
	p.logger.Info("booking_status_published", "booking_id", bookingID, "status", status)
	return nil
}

// Notify implements the outbound notification dispatch port. Routing key
// notify.{kind}.{user_id}; the notification worker consuming the queue owns
// e-mail/push delivery.
func (p *Publisher) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	msg := map[string]any{
		"user_id":   userID,
		"kind":      kind,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	key := fmt.Sprintf("notify.%s.%s", kind, userID)
	return p.publish(ctx, key, msg)
}

func (p *Publisher) publish(ctx context.Context, key string, msg any) error {
	ch, err := p.rmq.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := ch.PublishWithContext(ctx,
		rabbitmq.ExchangeBooking,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
