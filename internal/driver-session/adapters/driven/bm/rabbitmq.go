package bm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/man137/Ryda/internal/config"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
	"github.com/man137/Ryda/internal/mylogger"
)

const (
	telemetryExchangeName = "fleet_telemetry" // topic
	reconnInterval        = 5                 // seconds
)

// RabbitMQ publishes fleet telemetry (location, status, ride lifecycle
// events) mirrored off the driver session. Publishing is best-effort:
// a dead broker degrades to logging, never to a driver-visible error.
type RabbitMQ struct {
	ctx          context.Context
	cfg          config.RabbitMqconfig
	log          mylogger.Logger
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
	mu           *sync.Mutex
}

var _ driven.TelemetryPublisher = (*RabbitMQ)(nil)

func New(ctx context.Context, rabbitmqCfg config.RabbitMqconfig, log mylogger.Logger) (driven.TelemetryPublisher, error) {
	r := &RabbitMQ{
		ctx:          ctx,
		cfg:          rabbitmqCfg,
		log:          log,
		mu:           &sync.Mutex{},
		reconnecting: false,
	}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("rabbit connect: %w", err)
	}
	return r, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, msg any) error {
	if !r.IsAlive() {
		r.log.Action("telemetry_publish").Error("amqp not alive", errors.New("amqp closed"))
		go r.reconnect(r.ctx)
		return errors.New("amqp closed")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	pubctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.ch.PublishWithContext(pubctx, telemetryExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (r *RabbitMQ) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() {
		return false
	}
	if r.ch == nil || r.ch.IsClosed() {
		return false
	}
	return true
}

func (r *RabbitMQ) Close() error {
	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}

func (r *RabbitMQ) connect() error {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		r.cfg.User, r.cfg.Password, r.cfg.Host, r.cfg.Port,
	)
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(telemetryExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	return nil
}

func (r *RabbitMQ) reconnect(ctx context.Context) {
	r.mu.Lock()
	if r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.mu.Unlock()

	t := time.NewTicker(time.Duration(reconnInterval) * time.Second)
	l := r.log.Action("mb_reconnecting")

	for {
		select {
		case <-t.C:
			if err := r.connect(); err == nil {
				t.Stop()
				l.Action("mb_reconnection_completed").Info("reconnected")
				r.mu.Lock()
				r.reconnecting = false
				r.mu.Unlock()
				return
			}
			l.Info("reconnect failed")
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}
