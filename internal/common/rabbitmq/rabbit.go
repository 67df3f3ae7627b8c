package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/config"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/log"
)

// Exchanges carried by the booking core: status and notification events go
// through the topic exchange, raw location mirrors through the fanout.
const (
	ExchangeBooking  = "booking_topic"
	ExchangeLocation = "location_fanout"
)

type ManagerMQ struct {
	Conn     *amqp.Connection
	Chan     *amqp.Channel
	url      string
	log      *slog.Logger
	closedCh chan struct{}
	mu       sync.RWMutex
	alive    bool
}

func NewMQ(cfg *config.RMQ, logger *slog.Logger) *ManagerMQ {
	url := fmt.Sprintf(
		"amqp://%s:%s@%s:%d/", cfg.User, cfg.Password, cfg.Host, cfg.Port,
	)
	return &ManagerMQ{
		url:      url,
		log:      logger,
		closedCh: make(chan struct{}),
	}
}

func (m *ManagerMQ) Connect(ctx context.Context) error {
	if err := m.connectOnce(); err != nil {
		return err
	}

	go m.reconnectLoop(ctx)
	return nil
}

func (m *ManagerMQ) connectOnce() error {
	log.InfoX(m.log, "rmq_connect_once", "Connecting to RMQ")

	conn, err := amqp.DialConfig(m.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	m.mu.Lock()
	m.Conn, m.Chan = conn, ch
	m.alive = true
	m.mu.Unlock()

	log.InfoX(m.log, "rmq_connect_once", "Successfully connected to RMQ")
	return nil
}

func (m *ManagerMQ) reconnectLoop(ctx context.Context) {
	notifyClose := m.Conn.NotifyClose(make(chan *amqp.Error, 1))
	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case amqpErr := <-notifyClose:
			m.mu.Lock()
			m.alive = false
			m.mu.Unlock()
			if amqpErr != nil {
				log.ErrorX(m.log, "rmq_connection_lost", "Rabbit MQ connection closed", amqpErr)
			}
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					// retry every 4 seconds
				}
				if err := m.connectOnce(); err != nil {
					log.ErrorX(m.log, "rmq_reconnect_fail", "Failed to reconnect to RMQ", err)
					continue
				}
				if err := m.DeclareTopology(); err != nil {
					log.ErrorX(m.log, "rmq_declare_topology_fail", "Failed to redeclare topology in RMQ", err)
					continue
				}
				notifyClose = m.Conn.NotifyClose(make(chan *amqp.Error, 1))
				log.InfoX(m.log, "rmq_reconnected", "Reconnected to RMQ")
				break
			}
		}
	}
}

func (m *ManagerMQ) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Chan != nil {
		_ = m.Chan.Close()
	}
	if m.Conn != nil {
		_ = m.Conn.Close()
	}
	m.alive = false
	select {
	case <-m.closedCh:
	default:
		close(m.closedCh)
	}
	log.InfoX(m.log, "rmq_closed", "Rabbit MQ closed")
}

func (m *ManagerMQ) Channel() (*amqp.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.alive || m.Chan == nil {
		return nil, errors.New("channel not available")
	}
	return m.Chan, nil
}

func (m *ManagerMQ) DeclareTopology() error {
	ch, err := m.Channel()
	if err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(ExchangeBooking, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(ExchangeLocation, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	type qb struct {
		q, ex, key string
		isFanout   bool
	}
	for _, b := range []qb{
		{"booking_status", ExchangeBooking, "booking.status.*", false},
		{"notifications", ExchangeBooking, "notify.#", false},
		{"location_updates", ExchangeLocation, "", true}, // fanout ignores key
	} {
		if _, err := ch.QueueDeclare(b.q, true, false, false, false, nil); err != nil {
			return err
		}
		key := b.key
		if b.isFanout {
			key = ""
		}
		if err := ch.QueueBind(b.q, key, b.ex, false, nil); err != nil {
			return err
		}
	}
	return nil
}
