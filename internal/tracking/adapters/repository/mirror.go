package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/rabbitmq"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/domain"
)

const geoKey = "staff_live"

type rmqChanneler interface {
	Channel() (*amqp.Channel, error)
}

// PresenceMirror writes a display copy of each position: a Redis GEO set
// for map views and the location fanout exchange for external consumers.
// Process memory stays the source of truth; both writes are best-effort.
type PresenceMirror struct {
	client *redis.Client
	rmq    rmqChanneler
}

func NewPresenceMirror(client *redis.Client, rmq rmqChanneler) *PresenceMirror {
	return &PresenceMirror{client: client, rmq: rmq}
}

func (m *PresenceMirror) Mirror(ctx context.Context, userID string, p domain.Presence) error {
	if err := m.client.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      userID,
		Latitude:  p.Point.Latitude,
		Longitude: p.Point.Longitude,
	}).Err(); err != nil {
		return fmt.Errorf("geoadd: %w", err)
	}

	ch, err := m.rmq.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	body, err := json.Marshal(map[string]any{
		"user_id":   userID,
		"role":      p.Role,
		"latitude":  p.Point.Latitude,
		"longitude": p.Point.Longitude,
		"timestamp": p.RecordedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := ch.PublishWithContext(ctx,
		rabbitmq.ExchangeLocation,
		"",
		false,
		false,
		amqp.Publishing{ContentType: "application/json", Body: body},
	); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
